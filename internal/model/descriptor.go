package model

// ERPDescriptor is an external product descriptor, typically read from
// an Odoo-style ERP, to be matched against the local catalog.
type ERPDescriptor struct {
	ERPID           int     `json:"erp_id,omitempty"`
	Name            string  `json:"name"`
	Code            *string `json:"code,omitempty"`
	Barcode         *string `json:"barcode,omitempty"`
	EAN             *string `json:"ean,omitempty"`
	Manufacturer    *string `json:"manufacturer,omitempty"`
	ManufacturerRef *string `json:"manufacturer_ref,omitempty"`
}

// Empty reports whether the descriptor carries nothing to match on.
func (d ERPDescriptor) Empty() bool {
	return d.Name == "" &&
		!hasValue(d.Code) &&
		!hasValue(d.Barcode) &&
		!hasValue(d.EAN) &&
		!hasValue(d.ManufacturerRef)
}

func hasValue(p *string) bool {
	return p != nil && *p != ""
}
