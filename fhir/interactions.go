package fhir

import "slices"

// TypeInteraction is a resource-level RESTful interaction code.
type TypeInteraction string

const (
	InteractionRead            TypeInteraction = "read"
	InteractionVRead           TypeInteraction = "vread"
	InteractionUpdate          TypeInteraction = "update"
	InteractionDelete          TypeInteraction = "delete"
	InteractionHistoryInstance TypeInteraction = "history-instance"
	InteractionHistoryType     TypeInteraction = "history-type"
	InteractionCreate          TypeInteraction = "create"
	InteractionSearchType      TypeInteraction = "search-type"
)

// SystemInteraction is a whole-system RESTful interaction code.
type SystemInteraction string

const (
	InteractionTransaction   SystemInteraction = "transaction"
	InteractionBatch         SystemInteraction = "batch"
	InteractionHistorySystem SystemInteraction = "history-system"
	InteractionSearchSystem  SystemInteraction = "search-system"
)

var typeInteractionOrder = []TypeInteraction{
	InteractionRead,
	InteractionVRead,
	InteractionUpdate,
	InteractionDelete,
	InteractionHistoryInstance,
	InteractionHistoryType,
	InteractionCreate,
	InteractionSearchType,
}

var systemInteractionOrder = []SystemInteraction{
	InteractionTransaction,
	InteractionBatch,
	InteractionHistorySystem,
	InteractionSearchSystem,
}

// Valid reports whether i is a known resource-level interaction.
func (i TypeInteraction) Valid() bool { return slices.Contains(typeInteractionOrder, i) }

// Valid reports whether i is a known system-level interaction.
func (i SystemInteraction) Valid() bool { return slices.Contains(systemInteractionOrder, i) }

// SortTypeInteractions returns a deduplicated copy of in, ordered as the
// interactions appear in the FHIR specification. Unknown codes are dropped.
func SortTypeInteractions(in []TypeInteraction) []TypeInteraction {
	out := make([]TypeInteraction, 0, len(in))
	for _, i := range typeInteractionOrder {
		if slices.Contains(in, i) {
			out = append(out, i)
		}
	}
	return out
}

// SortSystemInteractions is SortTypeInteractions for system interactions.
func SortSystemInteractions(in []SystemInteraction) []SystemInteraction {
	out := make([]SystemInteraction, 0, len(in))
	for _, i := range systemInteractionOrder {
		if slices.Contains(in, i) {
			out = append(out, i)
		}
	}
	return out
}
