package session

// Transcript mutations flow through reduce so every transition is a pure
// value-to-value step; the controller only decides which events to feed
// in and when. reduce never touches the network.

type event interface{ isEvent() }

// submitAccepted appends the user turn optimistically, before any network
// activity, and moves the session to Awaiting.
type submitAccepted struct{ text string }

// assistantAppended finishes a submission cycle with one assistant-side
// content turn (chat reply, preview, or local usage hint).
type assistantAppended struct{ turn Turn }

// submissionFailed finishes a submission cycle with the fixed error turn
// plus a banner carrying the diagnostic text.
type submissionFailed struct{ detail string }

// approveStarted gates out concurrent submissions while an approval is in
// flight.
type approveStarted struct{ index int }

// approveSaved records the storage locator on the previewed turn, making
// it immutable from then on.
type approveSaved struct {
	index    int
	location string
}

// approveFailed records the failure on the turn without discarding the
// preview, so approval can be retried.
type approveFailed struct {
	index  int
	detail string
}

// sessionReset replaces the transcript with a single fresh greeting turn
// and advances the epoch so late responses are dropped.
type sessionReset struct{ greeting string }

func (submitAccepted) isEvent()    {}
func (assistantAppended) isEvent() {}
func (submissionFailed) isEvent()  {}
func (approveStarted) isEvent()    {}
func (approveSaved) isEvent()      {}
func (approveFailed) isEvent()     {}
func (sessionReset) isEvent()      {}

// errorTurnText is the fixed assistant-side acknowledgment appended when a
// request fails; the diagnostic detail goes to the banner instead.
const errorTurnText = "Something went wrong while talking to the backend. Please try again."

func reduce(s State, ev event) State {
	next := s.clone()
	switch ev := ev.(type) {
	case submitAccepted:
		next.Phase = PhaseAwaiting
		next.Banner = ""
		next.Turns = append(next.Turns, Turn{Speaker: SpeakerUser, Text: ev.text})
	case assistantAppended:
		next.Phase = PhaseIdle
		next.Turns = append(next.Turns, ev.turn)
	case submissionFailed:
		next.Phase = PhaseIdle
		next.Banner = ev.detail
		next.Turns = append(next.Turns, Turn{Speaker: SpeakerAssistant, Text: errorTurnText})
	case approveStarted:
		next.Phase = PhaseAwaiting
		next.Banner = ""
	case approveSaved:
		next.Phase = PhaseIdle
		if g := generationAt(next, ev.index); g != nil && !g.Saved() {
			g.SavedLocation = ev.location
			g.LastError = ""
		}
	case approveFailed:
		next.Phase = PhaseIdle
		next.Banner = ev.detail
		if g := generationAt(next, ev.index); g != nil && !g.Saved() {
			g.LastError = ev.detail
		}
	case sessionReset:
		next = State{
			Phase: PhaseIdle,
			Epoch: s.Epoch + 1,
			Turns: []Turn{{Speaker: SpeakerAssistant, Text: ev.greeting}},
		}
	}
	return next
}

func generationAt(s State, index int) *GenerationState {
	if index < 0 || index >= len(s.Turns) {
		return nil
	}
	return s.Turns[index].Generation
}
