// Package fsm defines the voice orchestrator state machine.
package fsm

import "fmt"

type State string

type Event string

const (
	StateIdle           State = "idle"
	StateListening      State = "listening"
	StateAwaitingResult State = "awaiting_result"
	StateDispatching    State = "dispatching"
	StateSpeaking       State = "speaking"
	StateSuspended      State = "suspended"
	StateDictating      State = "dictating"
	StateErrored        State = "errored"
)

const (
	EventStart      Event = "start"
	EventTranscript Event = "transcript"
	EventResolve    Event = "resolve"
	EventDiscard    Event = "discard"
	EventSpeak      Event = "speak"
	EventSpoken     Event = "spoken"
	EventSuspend    Event = "suspend"
	EventDictate    Event = "dictate"
	EventResume     Event = "resume"
	EventStop       Event = "stop"
	EventFail       Event = "fail"
	EventReset      Event = "reset"
)

// States lists every state in declaration order.
func States() []State {
	return []State{
		StateIdle,
		StateListening,
		StateAwaitingResult,
		StateDispatching,
		StateSpeaking,
		StateSuspended,
		StateDictating,
		StateErrored,
	}
}

func Transition(current State, event Event) (State, error) {
	if event == EventFail {
		return StateErrored, nil
	}

	switch current {
	case StateIdle:
		switch event {
		case EventStart:
			return StateListening, nil
		case EventTranscript:
			// Typed input is accepted while the microphone is off.
			return StateAwaitingResult, nil
		case EventSpeak:
			return StateSpeaking, nil
		case EventSuspend:
			return StateSuspended, nil
		case EventStop:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateListening:
		switch event {
		case EventTranscript:
			return StateAwaitingResult, nil
		case EventSpeak:
			return StateSpeaking, nil
		case EventSuspend:
			return StateSuspended, nil
		case EventStop:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateAwaitingResult:
		switch event {
		case EventResolve:
			return StateDispatching, nil
		case EventDiscard:
			return StateListening, nil
		case EventStop:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateDispatching:
		switch event {
		case EventSpeak:
			return StateSpeaking, nil
		case EventSpoken:
			return StateListening, nil
		case EventStop:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateSpeaking:
		switch event {
		case EventSpeak:
			return StateSpeaking, nil
		case EventSpoken:
			return StateListening, nil
		case EventSuspend:
			return StateSuspended, nil
		case EventStop:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateSuspended:
		switch event {
		case EventDictate:
			return StateDictating, nil
		case EventResume:
			return StateListening, nil
		case EventStop:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateDictating:
		switch event {
		case EventSpeak:
			return StateSpeaking, nil
		case EventResume:
			return StateListening, nil
		case EventStop:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateErrored:
		switch event {
		case EventReset:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

// MicrophoneOpen reports whether the ambient recognition channel may be active in state.
func MicrophoneOpen(state State) bool {
	return state == StateListening
}

// SpeakerBusy reports whether state owns the speech output channel or a dictation session.
func SpeakerBusy(state State) bool {
	return state == StateSpeaking || state == StateDictating
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
