// Package conversation implements the order-taking conversation state machine.
package conversation

import (
	"slices"

	"github.com/Gobusters/ectolinq"
)

// State is a position in the conversation flow.
type State string

const (
	StateGreeting                  State = "greeting"
	StateAwaitingPrescription      State = "awaiting_prescription"
	StateCollectingOrderItems      State = "collecting_order_items"
	StateAwaitingQuoteConfirmation State = "awaiting_quote_confirmation"
	StateAwaitingUserDetails       State = "awaiting_user_details"
	StateAwaitingPayment           State = "awaiting_payment"
	StateOrderConfirmed            State = "order_confirmed"

	InitialState = StateGreeting
)

// Action is something the dialogue engine may do while in a state.
type Action string

const (
	ActionSearchProducts      Action = "search_products"
	ActionRequestPrescription Action = "request_prescription"
	ActionSendMessage         Action = "send_message"
	ActionCollectUserDetails  Action = "collect_user_details"
	ActionAddItem             Action = "add_item"
	ActionRemoveItem          Action = "remove_item"
	ActionRequestQuote        Action = "request_quote"
	ActionConfirmQuote        Action = "confirm_quote"
	ActionModifyOrder         Action = "modify_order"
	ActionSendPaymentLink     Action = "send_payment_link"
	ActionCheckPaymentStatus  Action = "check_payment_status"
	ActionSendOrderSummary    Action = "send_order_summary"
	ActionStartNewOrder       Action = "start_new_order"
)

// StateInfo describes a state for the dialogue engine.
type StateInfo struct {
	State        State    `json:"state"`
	Description  string   `json:"description"`
	NextStates   []State  `json:"next_states"`
	ValidActions []Action `json:"valid_actions"`
}

// StateInfoMap is the complete transition table. A state not listed here does not exist.
var StateInfoMap = map[State]StateInfo{
	StateGreeting: {
		State:        StateGreeting,
		Description:  "Conversation start; greet the contact and find out what they need",
		NextStates:   []State{StateAwaitingPrescription, StateCollectingOrderItems, StateAwaitingUserDetails},
		ValidActions: []Action{ActionSearchProducts, ActionRequestPrescription, ActionSendMessage, ActionCollectUserDetails},
	},
	StateAwaitingPrescription: {
		State:        StateAwaitingPrescription,
		Description:  "Waiting for the contact to send a valid prescription",
		NextStates:   []State{StateCollectingOrderItems, StateGreeting},
		ValidActions: []Action{ActionRequestPrescription, ActionSendMessage, ActionSearchProducts},
	},
	StateCollectingOrderItems: {
		State:        StateCollectingOrderItems,
		Description:  "Building the order item by item",
		NextStates:   []State{StateAwaitingQuoteConfirmation, StateAwaitingPrescription, StateAwaitingUserDetails},
		ValidActions: []Action{ActionSearchProducts, ActionAddItem, ActionRemoveItem, ActionRequestQuote, ActionSendMessage},
	},
	StateAwaitingQuoteConfirmation: {
		State:        StateAwaitingQuoteConfirmation,
		Description:  "Quote sent; waiting for the contact to confirm or change the order",
		NextStates:   []State{StateAwaitingPayment, StateCollectingOrderItems, StateAwaitingUserDetails},
		ValidActions: []Action{ActionConfirmQuote, ActionModifyOrder, ActionSendMessage},
	},
	StateAwaitingUserDetails: {
		State:        StateAwaitingUserDetails,
		Description:  "Collecting the personal data needed to register the contact",
		NextStates:   []State{StateAwaitingPayment, StateAwaitingQuoteConfirmation},
		ValidActions: []Action{ActionCollectUserDetails, ActionConfirmQuote, ActionSendMessage},
	},
	StateAwaitingPayment: {
		State:        StateAwaitingPayment,
		Description:  "Payment link sent; waiting for confirmation",
		NextStates:   []State{StateOrderConfirmed, StateAwaitingQuoteConfirmation},
		ValidActions: []Action{ActionSendPaymentLink, ActionCheckPaymentStatus, ActionSendMessage},
	},
	StateOrderConfirmed: {
		State:        StateOrderConfirmed,
		Description:  "Order paid and confirmed",
		NextStates:   []State{StateGreeting},
		ValidActions: []Action{ActionSendOrderSummary, ActionSendMessage, ActionStartNewOrder},
	},
}

// ParseState reports whether raw names a known state.
func ParseState(raw string) (State, bool) {
	s := State(raw)
	_, ok := StateInfoMap[s]
	return s, ok
}

// IsValid reports whether s is a known state.
func (s State) IsValid() bool {
	_, ok := StateInfoMap[s]
	return ok
}

// AllowedTargets returns the states reachable from s in one step. Unknown states have none.
func AllowedTargets(s State) []State {
	return slices.Clone(StateInfoMap[s].NextStates)
}

// ValidActions returns the actions available in s. Unknown states have none.
func ValidActions(s State) []Action {
	return slices.Clone(StateInfoMap[s].ValidActions)
}

// CanTransition reports whether from -> to is an edge. Staying in the same state is not an edge.
func CanTransition(from, to State) bool {
	info, ok := StateInfoMap[from]
	if !ok || !to.IsValid() {
		return false
	}
	return ectolinq.Contains(info.NextStates, to)
}

// States returns every state name, initial state first.
func States() []string {
	return ectolinq.Map(orderedStates, func(s State) string { return string(s) })
}

var orderedStates = []State{
	StateGreeting,
	StateAwaitingPrescription,
	StateCollectingOrderItems,
	StateAwaitingQuoteConfirmation,
	StateAwaitingUserDetails,
	StateAwaitingPayment,
	StateOrderConfirmed,
}
