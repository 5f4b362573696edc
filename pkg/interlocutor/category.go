package interlocutor

import (
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/models"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/normalizers"
)

var categoryAliases = map[string]models.AssociationCategory{
	"direct":         models.AssociationDirect,
	"assoc_paciente": models.AssociationDirect,
	"paciente":       models.AssociationDirect,
	"patient":        models.AssociationDirect,
	"titular":        models.AssociationDirect,

	"responsible":  models.AssociationResponsible,
	"assoc_respon": models.AssociationResponsible,
	"responsavel":  models.AssociationResponsible,
	"tutor":        models.AssociationResponsible,
}

// NormalizeCategory maps an external association value onto a known category.
// Matching ignores case, accents and surrounding whitespace.
func NormalizeCategory(raw string) (models.AssociationCategory, bool) {
	category, ok := categoryAliases[normalizers.Fold(raw)]
	return category, ok
}
