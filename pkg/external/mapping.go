package external

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/expressions"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/normalizers"
)

// Field names accepted as keys of a tenant's field mapping.
const (
	FieldRecords               = "records"
	FieldID                    = "id"
	FieldName                  = "name"
	FieldPhone                 = "phone"
	FieldNationalID            = "national_id"
	FieldAssociationType       = "association_type"
	FieldResponsibleName       = "responsible_name"
	FieldResponsibleNationalID = "responsible_national_id"
	FieldAttributes            = "attributes"
)

// NormalizerSuffix marks a field mapping key that names the normalizers of a field,
// e.g. "name.normalizer": "trim,fold". Names are applied left to right.
const NormalizerSuffix = ".normalizer"

// Mapping holds the JMESPath expressions used to read a record from a response,
// and the normalizer chain applied to each extracted text field.
type Mapping struct {
	Records               string
	ID                    string
	Name                  string
	Phone                 string
	NationalID            string
	AssociationType       string
	ResponsibleName       string
	ResponsibleNationalID string
	Attributes            string

	Normalizers map[string][]string
}

// DefaultMapping reads the custom-field layout of the WordPress member plugin
// and falls back to plain field names.
func DefaultMapping() Mapping {
	return Mapping{
		Records:               "data || clients || results || @",
		ID:                    "id",
		Name:                  "acf.nome_completo || name || nome",
		Phone:                 "acf.telefone || phone || telefone",
		NationalID:            "acf.cpf || national_id || cpf",
		AssociationType:       "acf.tipo_associacao || association_type",
		ResponsibleName:       "acf.nome_completo_respon || responsible_name",
		ResponsibleNationalID: "acf.cpf_responsavel || responsible_national_id",
		Attributes:            "acf || attributes || meta",
		Normalizers: map[string][]string{
			FieldName:                  {"nname"},
			FieldNationalID:            {"nnational_id"},
			FieldResponsibleName:       {"nname"},
			FieldResponsibleNationalID: {"nnational_id"},
		},
	}
}

// ResolveMapping overlays a tenant's overrides on DefaultMapping. Blank or unknown keys are ignored.
func ResolveMapping(overrides map[string]string) Mapping {
	m := DefaultMapping()
	for key, expr := range overrides {
		expr = strings.TrimSpace(expr)
		if expr == "" {
			continue
		}
		if field, ok := strings.CutSuffix(key, NormalizerSuffix); ok {
			if m.expression(field) != nil {
				m.Normalizers[field] = parseChain(expr)
			}
			continue
		}
		if dest := m.expression(key); dest != nil {
			*dest = expr
		}
	}
	return m
}

func (m *Mapping) expression(field string) *string {
	switch field {
	case FieldRecords:
		return &m.Records
	case FieldID:
		return &m.ID
	case FieldName:
		return &m.Name
	case FieldPhone:
		return &m.Phone
	case FieldNationalID:
		return &m.NationalID
	case FieldAssociationType:
		return &m.AssociationType
	case FieldResponsibleName:
		return &m.ResponsibleName
	case FieldResponsibleNationalID:
		return &m.ResponsibleNationalID
	case FieldAttributes:
		return &m.Attributes
	}
	return nil
}

func parseChain(raw string) []string {
	var chain []string
	for _, name := range strings.Split(raw, ",") {
		if name = strings.TrimSpace(name); name != "" {
			chain = append(chain, name)
		}
	}
	return chain
}

// Expressions lists every expression of the mapping by field name.
func (m Mapping) Expressions() map[string]string {
	return map[string]string{
		FieldRecords:               m.Records,
		FieldID:                    m.ID,
		FieldName:                  m.Name,
		FieldPhone:                 m.Phone,
		FieldNationalID:            m.NationalID,
		FieldAssociationType:       m.AssociationType,
		FieldResponsibleName:       m.ResponsibleName,
		FieldResponsibleNationalID: m.ResponsibleNationalID,
		FieldAttributes:            m.Attributes,
	}
}

// Normalize runs the field's normalizer chain over value.
func (m Mapping) Normalize(field, value string) string {
	return normalizers.ApplyChain(value, m.Normalizers[field]...)
}

// CheckMapping reports every override whose expression does not compile or whose
// normalizer is not registered. A nil result means the mapping is usable as is.
func CheckMapping(eval *expressions.Evaluator, overrides map[string]string) error {
	m := ResolveMapping(overrides)
	exprs := m.Expressions()

	var errs []error
	for _, field := range slices.Sorted(maps.Keys(exprs)) {
		if err := eval.Validate(exprs[field]); err != nil {
			errs = append(errs, fmt.Errorf("field %s: %w", field, err))
		}
	}
	for _, field := range slices.Sorted(maps.Keys(m.Normalizers)) {
		for _, name := range m.Normalizers[field] {
			if _, ok := normalizers.Get(name); !ok {
				errs = append(errs, fmt.Errorf("field %s: unknown normalizer %q", field, name))
			}
		}
	}
	return errors.Join(errs...)
}
