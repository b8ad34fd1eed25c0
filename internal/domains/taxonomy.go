package domains

// IntentOption is one fixed choice in a domain's intent taxonomy.
type IntentOption struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

// Domain describes one supported document domain.
type Domain struct {
	ID          string
	Description string
	Keywords    []string
	Intents     []IntentOption
}

// Unsupported is the classifier outcome for documents outside the taxonomy.
const Unsupported = "unsupported"

// IntentOther is the free-text escape hatch present in every domain.
const IntentOther = "other"

// IntentReviewing is the review-for-someone-else option present in every
// domain.
const IntentReviewing = "reviewing"

var reviewingOption = IntentOption{
	ID:          IntentReviewing,
	Label:       "I am reviewing for someone else",
	Description: "You are helping someone understand this document",
}

var otherOption = IntentOption{
	ID:          IntentOther,
	Label:       "Other",
	Description: "My situation is different",
}

// Taxonomy is the closed set of supported domains. Every domain carries the
// generic reviewing option and the free-text "other" escape hatch, so intent
// selection never dead-ends.
var Taxonomy = map[string]Domain{
	"real_estate": {
		ID:          "real_estate",
		Description: "Real Estate Documents",
		Keywords:    []string{"property", "deed", "title", "mortgage", "real estate", "land", "purchase"},
		Intents: []IntentOption{
			{ID: "buyer", Label: "I am buying this property", Description: "You want to purchase and will be the new owner"},
			{ID: "seller", Label: "I am selling this property", Description: "You own the property and are transferring ownership"},
			reviewingOption,
			otherOption,
		},
	},
	"rental": {
		ID:          "rental",
		Description: "Rental & Lease Agreements",
		Keywords:    []string{"lease", "tenant", "landlord", "rent", "premises", "occupancy", "rental"},
		Intents: []IntentOption{
			{ID: "tenant", Label: "I am the tenant signing this lease", Description: "You will be renting and living in the property"},
			{ID: "landlord", Label: "I am the landlord/property owner", Description: "You own the property and are leasing it out"},
			reviewingOption,
			otherOption,
		},
	},
	"employment": {
		ID:          "employment",
		Description: "Employment Contracts",
		Keywords:    []string{"employee", "employer", "salary", "compensation", "termination", "employment", "job", "hire"},
		Intents: []IntentOption{
			{ID: "employee", Label: "I am the employee signing this contract", Description: "You are being hired and will work for this company"},
			{ID: "employer", Label: "I am the employer/company", Description: "You are hiring and this is your contract"},
			reviewingOption,
			otherOption,
		},
	},
	"finance": {
		ID:          "finance",
		Description: "Financial Documents",
		Keywords:    []string{"loan", "credit", "interest", "principal", "payment", "financial", "mortgage", "debt"},
		Intents: []IntentOption{
			{ID: "borrower", Label: "I am the borrower", Description: "You are taking the loan or credit"},
			{ID: "lender", Label: "I am the lender/institution", Description: "You are providing the loan or credit"},
			reviewingOption,
			otherOption,
		},
	},
	"insurance": {
		ID:          "insurance",
		Description: "Insurance Policies",
		Keywords:    []string{"policy", "premium", "coverage", "claim", "insured", "insurance", "deductible"},
		Intents: []IntentOption{
			{ID: "policyholder", Label: "I am buying/reviewing this policy", Description: "You are the one being insured"},
			{ID: "beneficiary", Label: "I am a beneficiary", Description: "You are named as a beneficiary on this policy"},
			reviewingOption,
			otherOption,
		},
	},
	"legal_agreement": {
		ID:          "legal_agreement",
		Description: "Legal Agreements (NDA, Service Contracts, etc.)",
		Keywords:    []string{"agreement", "contract", "party", "terms", "conditions", "obligations", "nda", "confidential"},
		Intents: []IntentOption{
			{ID: "party_a", Label: "I am signing/agreeing to this", Description: "You are one of the parties entering this agreement"},
			{ID: "party_receiving", Label: "I am the party receiving services", Description: "You are receiving services or goods under this agreement"},
			reviewingOption,
			otherOption,
		},
	},
}

// SearchQueries drives retrieval for the analysis stage, per domain.
var SearchQueries = map[string][]string{
	"rental": {
		"rent payment terms",
		"security deposit",
		"termination clause",
		"maintenance responsibilities",
		"late fees penalties",
	},
	"employment": {
		"compensation salary",
		"termination conditions",
		"non-compete clause",
		"benefits vacation",
		"confidentiality",
	},
	"real_estate": {
		"purchase price",
		"closing conditions",
		"warranties representations",
		"title transfer",
		"contingencies",
	},
	"finance": {
		"interest rate",
		"payment schedule",
		"default conditions",
		"prepayment penalty",
		"collateral",
	},
	"insurance": {
		"coverage limits",
		"exclusions",
		"deductible",
		"claim process",
		"premium payment",
	},
	"legal_agreement": {
		"obligations duties",
		"termination",
		"liability limitations",
		"confidentiality",
		"dispute resolution",
	},
}

// ExpectedClauses feeds completeness scoring, per domain.
var ExpectedClauses = map[string][]string{
	"rental":          {"rent amount", "security deposit", "lease term", "maintenance", "termination", "late fees"},
	"employment":      {"compensation", "benefits", "termination", "confidentiality", "duties", "start date"},
	"real_estate":     {"purchase price", "closing date", "title", "contingencies", "warranties"},
	"finance":         {"principal", "interest", "payment schedule", "default", "prepayment"},
	"insurance":       {"coverage", "premium", "deductible", "exclusions", "claim"},
	"legal_agreement": {"parties", "obligations", "term", "termination", "governing law"},
}

// Get returns the domain for id.
func Get(id string) (Domain, bool) {
	d, ok := Taxonomy[id]
	return d, ok
}

// IDs returns all supported domain ids in stable order.
func IDs() []string {
	return []string{"real_estate", "rental", "employment", "finance", "insurance", "legal_agreement"}
}
