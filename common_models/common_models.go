package common_models

// IdentityInput holds the personal data entered at the identity-form step.
// It is written once per session and read-only afterwards: every subsequent
// analysis submission reads the same persisted value.
type IdentityInput struct {
	FirstName string `json:"firstName" bson:"firstName"`
	LastName  string `json:"lastName" bson:"lastName"`
	BirthDate string `json:"birthDate" bson:"birthDate"` // YYYY-MM-DD
}

// ContactInfo holds the contact data entered at the contact-form step.
type ContactInfo struct {
	Email       string `json:"email" bson:"email"`
	PhoneNumber string `json:"phoneNumber" bson:"phoneNumber"`
}

type ArtifactSide string

const (
	ArtifactSideFront  ArtifactSide = "front"
	ArtifactSideBack   ArtifactSide = "back"
	ArtifactSideSelfie ArtifactSide = "selfie"
)

// CaptureSource tells where an artifact comes from; camera captures and
// manual uploads have different size limits.
type CaptureSource string

const (
	CaptureSourceCamera CaptureSource = "camera"
	CaptureSourceUpload CaptureSource = "upload"
)

type DocumentCategory string

const (
	DocumentCategoryIdCard      DocumentCategory = "id-card"
	DocumentCategoryJdd         DocumentCategory = "jdd" // proof of address ("justificatif de domicile")
	DocumentCategoryIncomeProof DocumentCategory = "income-proof"
	// DocumentCategorySelfie is the submission category of the selfie stage.
	// It is not a template document category: KnownCategory rejects it.
	DocumentCategorySelfie DocumentCategory = "selfie"
)

// DocumentOption is one concrete document choice inside a category.
type DocumentOption struct {
	Id          string `json:"id" bson:"id"`
	Label       string `json:"label" bson:"label"`
	HasTwoSides bool   `json:"hasTwoSides" bson:"hasTwoSides"`
}

// twoSidedOptions is the static lookup deciding whether a second capture step
// is required. Only id-card options can be two-sided; jdd and income-proof
// documents are always single-sided.
var twoSidedOptions = map[string]bool{
	"passport":         false,
	"identity-card":    true,
	"residence-permit": true,
	"driving-license":  true,
}

var defaultOptions = map[DocumentCategory][]DocumentOption{
	DocumentCategoryIdCard: {
		{Id: "passport", Label: "Passport"},
		{Id: "identity-card", Label: "National identity card"},
		{Id: "residence-permit", Label: "Residence permit"},
		{Id: "driving-license", Label: "Driving license"},
	},
	DocumentCategoryJdd: {
		{Id: "utility-bill", Label: "Utility bill"},
		{Id: "rent-receipt", Label: "Rent receipt"},
		{Id: "tax-notice", Label: "Tax notice"},
	},
	DocumentCategoryIncomeProof: {
		{Id: "payslip", Label: "Payslip"},
		{Id: "tax-return", Label: "Tax return"},
	},
}

// DefaultOptionsForCategory returns the hard-coded option list used when the
// session template does not provide one. HasTwoSides is resolved from the
// static lookup, forced to false outside the id-card category.
func DefaultOptionsForCategory(category DocumentCategory) []DocumentOption {
	options := defaultOptions[category]
	result := make([]DocumentOption, len(options))
	for i, option := range options {
		result[i] = option
		result[i].HasTwoSides = OptionHasTwoSides(category, option.Id)
	}
	return result
}

// OptionHasTwoSides resolves the two-sided flag for a concrete option id.
func OptionHasTwoSides(category DocumentCategory, optionId string) bool {
	if category != DocumentCategoryIdCard {
		return false
	}
	return twoSidedOptions[optionId]
}

// KnownCategory checks that a category id is one this SDK can submit.
// Template nodes with other ids are a configuration error, never silently
// submitted (additional categories are an extension point).
func KnownCategory(category DocumentCategory) bool {
	switch category {
	case DocumentCategoryIdCard, DocumentCategoryJdd, DocumentCategoryIncomeProof:
		return true
	}
	return false
}
