package model

// FieldKey identifies one field of the product schema.
type FieldKey string

// Product field keys. The set is fixed at compile time; extraction,
// merging, and export all iterate the same enumeration.
const (
	FieldDefaultCode      FieldKey = "default_code"
	FieldBarcode          FieldKey = "barcode"
	FieldEAN              FieldKey = "ean"
	FieldName             FieldKey = "name"
	FieldCategory         FieldKey = "category"
	FieldCountryOfOrigin  FieldKey = "country_of_origin"
	FieldManufacturer     FieldKey = "manufacturer"
	FieldManufacturerRef  FieldKey = "manufacturer_ref"
	FieldShortDescription FieldKey = "short_description"
	FieldLongDescription  FieldKey = "long_description"
	FieldFeatures         FieldKey = "features"
	FieldHSCode           FieldKey = "hs_code"
	FieldLengthMM         FieldKey = "length_mm"
	FieldWidthMM          FieldKey = "width_mm"
	FieldHeightMM         FieldKey = "height_mm"
	FieldWeightKG         FieldKey = "weight_kg"
	FieldListPrice        FieldKey = "list_price"
)

// Fields holds every extractable product field. Nil means the field has
// not been extracted from any source yet.
type Fields struct {
	DefaultCode      *string  `json:"default_code,omitempty"`
	Barcode          *string  `json:"barcode,omitempty"`
	EAN              *string  `json:"ean,omitempty"`
	Name             *string  `json:"name,omitempty"`
	Category         *string  `json:"category,omitempty"`
	CountryOfOrigin  *string  `json:"country_of_origin,omitempty"`
	Manufacturer     *string  `json:"manufacturer,omitempty"`
	ManufacturerRef  *string  `json:"manufacturer_ref,omitempty"`
	ShortDescription *string  `json:"short_description,omitempty"`
	LongDescription  *string  `json:"long_description,omitempty"`
	Features         *string  `json:"features,omitempty"`
	HSCode           *string  `json:"hs_code,omitempty"`
	LengthMM         *float64 `json:"length_mm,omitempty"`
	WidthMM          *float64 `json:"width_mm,omitempty"`
	HeightMM         *float64 `json:"height_mm,omitempty"`
	WeightKG         *float64 `json:"weight_kg,omitempty"`
	ListPrice        *float64 `json:"list_price,omitempty"`
}

// Confidence maps a field key to the extraction confidence of its
// current value, in [0,1].
type Confidence map[FieldKey]float64

// FieldKind distinguishes the value type behind a field accessor.
type FieldKind int

// Field value kinds.
const (
	KindString FieldKind = iota
	KindFloat
)

// FieldAccessor exposes typed access to one field of a Fields struct,
// so merge and export logic can iterate the schema without reflection.
type FieldAccessor struct {
	Key    FieldKey
	Kind   FieldKind
	String func(*Fields) **string
	Float  func(*Fields) **float64
}

// Present reports whether the field holds a value in f.
func (a FieldAccessor) Present(f *Fields) bool {
	switch a.Kind {
	case KindString:
		return *a.String(f) != nil
	default:
		return *a.Float(f) != nil
	}
}

// Copy copies the field value from src into dst. A nil source clears
// the destination field.
func (a FieldAccessor) Copy(dst, src *Fields) {
	switch a.Kind {
	case KindString:
		if p := *a.String(src); p != nil {
			v := *p
			*a.String(dst) = &v
		} else {
			*a.String(dst) = nil
		}
	default:
		if p := *a.Float(src); p != nil {
			v := *p
			*a.Float(dst) = &v
		} else {
			*a.Float(dst) = nil
		}
	}
}

// Clear removes the field value from f.
func (a FieldAccessor) Clear(f *Fields) {
	switch a.Kind {
	case KindString:
		*a.String(f) = nil
	default:
		*a.Float(f) = nil
	}
}

// Value returns the field value in f as any, or nil when absent.
func (a FieldAccessor) Value(f *Fields) any {
	switch a.Kind {
	case KindString:
		if p := *a.String(f); p != nil {
			return *p
		}
	default:
		if p := *a.Float(f); p != nil {
			return *p
		}
	}
	return nil
}

func strField(key FieldKey, get func(*Fields) **string) FieldAccessor {
	return FieldAccessor{Key: key, Kind: KindString, String: get}
}

func floatField(key FieldKey, get func(*Fields) **float64) FieldAccessor {
	return FieldAccessor{Key: key, Kind: KindFloat, Float: get}
}

// fieldSchema enumerates every field accessor in a stable order.
var fieldSchema = []FieldAccessor{
	strField(FieldDefaultCode, func(f *Fields) **string { return &f.DefaultCode }),
	strField(FieldBarcode, func(f *Fields) **string { return &f.Barcode }),
	strField(FieldEAN, func(f *Fields) **string { return &f.EAN }),
	strField(FieldName, func(f *Fields) **string { return &f.Name }),
	strField(FieldCategory, func(f *Fields) **string { return &f.Category }),
	strField(FieldCountryOfOrigin, func(f *Fields) **string { return &f.CountryOfOrigin }),
	strField(FieldManufacturer, func(f *Fields) **string { return &f.Manufacturer }),
	strField(FieldManufacturerRef, func(f *Fields) **string { return &f.ManufacturerRef }),
	strField(FieldShortDescription, func(f *Fields) **string { return &f.ShortDescription }),
	strField(FieldLongDescription, func(f *Fields) **string { return &f.LongDescription }),
	strField(FieldFeatures, func(f *Fields) **string { return &f.Features }),
	strField(FieldHSCode, func(f *Fields) **string { return &f.HSCode }),
	floatField(FieldLengthMM, func(f *Fields) **float64 { return &f.LengthMM }),
	floatField(FieldWidthMM, func(f *Fields) **float64 { return &f.WidthMM }),
	floatField(FieldHeightMM, func(f *Fields) **float64 { return &f.HeightMM }),
	floatField(FieldWeightKG, func(f *Fields) **float64 { return &f.WeightKG }),
	floatField(FieldListPrice, func(f *Fields) **float64 { return &f.ListPrice }),
}

// Schema returns the accessors for every product field in declaration order.
func Schema() []FieldAccessor {
	return fieldSchema
}

// AccessorFor returns the accessor for key, or false if the key is not
// part of the schema.
func AccessorFor(key FieldKey) (FieldAccessor, bool) {
	for _, a := range fieldSchema {
		if a.Key == key {
			return a, true
		}
	}
	return FieldAccessor{}, false
}

// PresentKeys returns the keys of every field holding a value, in
// schema order.
func (f *Fields) PresentKeys() []FieldKey {
	var keys []FieldKey
	for _, a := range fieldSchema {
		if a.Present(f) {
			keys = append(keys, a.Key)
		}
	}
	return keys
}

// KeyFields lists the identity key fields in match priority order.
// The first non-nil value is the one used for an exact lookup pass.
var KeyFields = []FieldKey{FieldDefaultCode, FieldBarcode, FieldEAN}

// FirstKey returns the highest-priority identity key holding a value.
func (f *Fields) FirstKey() (FieldKey, string, bool) {
	for _, key := range KeyFields {
		a, _ := AccessorFor(key)
		if p := *a.String(f); p != nil && *p != "" {
			return key, *p, true
		}
	}
	return "", "", false
}
