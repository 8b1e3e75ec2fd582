package engine

import "github.com/law-makers/harvest/pkg/models"

// CompanyFields maps the labels of the company master data table
var CompanyFields = MustFieldDictionary("companies",
	FieldSpec{Label: "CIN", Field: "cin"},
	FieldSpec{Label: "Company Name", Field: "company_name"},
	FieldSpec{Label: "ROC Code", Field: "roc_code"},
	FieldSpec{Label: "Registration Number", Field: "registration_number"},
	FieldSpec{Label: "Company Category", Field: "company_category"},
	FieldSpec{Label: "Company Sub Category", Field: "company_sub_category"},
	FieldSpec{Label: "Class of Company", Field: "class_of_company"},
	FieldSpec{Label: "Date of Incorporation", Field: "date_of_incorporation"},
	FieldSpec{Label: "Age of Company", Field: "age_of_company"},
	FieldSpec{Label: "Activity", Field: "activity"},
	FieldSpec{Label: "Number of Members", Field: "number_of_members"},
	FieldSpec{Label: "Authorised Capital(Rs)", Field: "authorised_capital"},
	FieldSpec{Label: "Paid up Capital(Rs)", Field: "paid_up_capital"},
	FieldSpec{Label: "Registered Address", Field: "registered_address"},
	FieldSpec{Label: "Email Id", Field: "email"},
	FieldSpec{Label: "Company Status(for efiling)", Field: "company_status"},
	FieldSpec{Label: "Date of last AGM", Field: "date_of_last_agm"},
	FieldSpec{Label: "Date of Balance Sheet", Field: "date_of_balance_sheet"},
)

// DeveloperFields maps keys of the user profile document
var DeveloperFields = MustFieldDictionary("developers",
	FieldSpec{Label: "login", Field: "login"},
	FieldSpec{Label: "name", Field: "name"},
	FieldSpec{Label: "company", Field: "company"},
	FieldSpec{Label: "blog", Field: "blog"},
	FieldSpec{Label: "location", Field: "location"},
	FieldSpec{Label: "email", Field: "email"},
	FieldSpec{Label: "bio", Field: "bio"},
	FieldSpec{Label: "twitter_username", Field: "twitter_username"},
	FieldSpec{Label: "public_repos", Field: "public_repos"},
	FieldSpec{Label: "public_gists", Field: "public_gists"},
	FieldSpec{Label: "followers", Field: "followers"},
	FieldSpec{Label: "following", Field: "following"},
	FieldSpec{Label: "html_url", Field: "profile_url"},
	FieldSpec{Label: "avatar_url", Field: "avatar_url"},
	FieldSpec{Label: "created_at", Field: "created_at"},
	FieldSpec{Label: "updated_at", Field: "updated_at"},
	FieldSpec{Label: "repositories", Field: "repositories", Format: FormatStructured},
)

// JobFields maps the per-item labels produced by the job list strategy
var JobFields = MustFieldDictionary("job_listings",
	FieldSpec{Label: "title", Field: "title"},
	FieldSpec{Label: "url", Field: "url"},
	FieldSpec{Label: "location", Field: "location"},
	FieldSpec{Label: "team", Field: "team"},
	FieldSpec{Label: "employment_type", Field: "employment_type"},
	FieldSpec{Label: "posted", Field: "posted"},
	FieldSpec{Label: "description", Field: "description", Format: FormatMarkdown},
)

// DictionaryFor returns the built-in dictionary of a source kind
func DictionaryFor(kind models.SourceKind) *FieldDictionary {
	switch kind {
	case models.KindStaticForm:
		return CompanyFields
	case models.KindPagedAPI:
		return DeveloperFields
	case models.KindDynamicList:
		return JobFields
	}
	return nil
}
