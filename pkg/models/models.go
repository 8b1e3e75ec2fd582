package models

import (
	"fmt"
	"strings"
)

// SourceKind identifies which extraction strategy serves a target
type SourceKind string

const (
	KindStaticForm  SourceKind = "STATIC_FORM"
	KindPagedAPI    SourceKind = "PAGED_API"
	KindDynamicList SourceKind = "DYNAMIC_LIST"
)

// AllKinds returns every supported source kind in a stable order
func AllKinds() []SourceKind {
	return []SourceKind{KindStaticForm, KindPagedAPI, KindDynamicList}
}

// Valid reports whether k is a known source kind
func (k SourceKind) Valid() bool {
	switch k {
	case KindStaticForm, KindPagedAPI, KindDynamicList:
		return true
	}
	return false
}

// Collection is the sink collection records of this kind are written to
func (k SourceKind) Collection() string {
	switch k {
	case KindStaticForm:
		return "companies"
	case KindPagedAPI:
		return "developers"
	case KindDynamicList:
		return "job_listings"
	}
	return ""
}

// IdentifierField is the attribute that carries the record's natural key
func (k SourceKind) IdentifierField() string {
	switch k {
	case KindStaticForm:
		return "cin"
	case KindPagedAPI:
		return "login"
	case KindDynamicList:
		return "url"
	}
	return ""
}

// NormalizeKey puts a natural key of this kind into its stored form.
// CINs are upper-cased; other keys are only trimmed.
func (k SourceKind) NormalizeKey(key string) string {
	key = strings.TrimSpace(key)
	if k == KindStaticForm {
		key = strings.ToUpper(key)
	}
	return key
}

var kindAliases = map[string]SourceKind{
	"static":       KindStaticForm,
	"static_form":  KindStaticForm,
	"form":         KindStaticForm,
	"company":      KindStaticForm,
	"companies":    KindStaticForm,
	"api":          KindPagedAPI,
	"paged_api":    KindPagedAPI,
	"developer":    KindPagedAPI,
	"developers":   KindPagedAPI,
	"dynamic":      KindDynamicList,
	"dynamic_list": KindDynamicList,
	"jobs":         KindDynamicList,
	"job_listings": KindDynamicList,
}

// ParseSourceKind accepts the canonical name, a collection name or a short alias
func ParseSourceKind(s string) (SourceKind, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.ReplaceAll(key, "-", "_")
	if k, ok := kindAliases[key]; ok {
		return k, nil
	}
	if k := SourceKind(strings.ToUpper(key)); k.Valid() {
		return k, nil
	}
	return "", fmt.Errorf("unknown source kind %q (expected static, api or dynamic)", s)
}
