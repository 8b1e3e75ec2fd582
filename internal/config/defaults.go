package config

import "time"

// Default constants for application configuration
const (
	DefaultLogLevel    = "warn"
	DefaultJSONLog     = false
	DefaultUserAgent   = "Harvest/1.0 (https://github.com/law-makers/harvest)"
	DefaultHTTPTimeout = 30 * time.Second
	MaxHTTPTimeout     = 5 * time.Minute

	DefaultStaticEndpoint  = "https://www.mca.gov.in/mcafoportal/viewCompanyMasterData.do"
	DefaultStaticFormField = "companyID"
	DefaultStaticContainer = "table#resultTab1"
	DefaultStaticDelay     = 3 * time.Second

	DefaultAPIBaseURL  = "https://api.github.com"
	DefaultAPIMaxPages = 5
	DefaultAPIMaxWait  = 5 * time.Minute

	DefaultDynamicURL         = "https://careers.example.com/jobs"
	DefaultDynamicContainer   = "ul.job-list"
	DefaultDynamicItem        = "li.job-list-item"
	DefaultDynamicWaitTimeout = 30 * time.Second
	DefaultDynamicDelay       = 2 * time.Second

	DefaultWorkers     = 4
	MaxWorkers         = 64
	DefaultMaxRetries  = 2
	DefaultBackoffBase = 500 * time.Millisecond
	DefaultBackoffMax  = 10 * time.Second
	DefaultCallTimeout = 2 * time.Minute

	DefaultBrowserMaxSessions = 2
	MaxBrowserSessions        = 10
	DefaultBrowserHeadless    = true
	DefaultBrowserReadTimeout = 10 * time.Second

	DefaultStoreDriver = "sqlite"
	DefaultStoreDSN    = "harvest.db"

	DefaultListenAddr = ":5000"

	// EnvPrefix is prepended to every environment override, e.g. HARVEST_STORE_DRIVER
	EnvPrefix = "HARVEST"
)

// Rate policies understood by the governor
const (
	PolicyNone  = "none"
	PolicyFixed = "fixed"
	PolicyQuota = "quota"
)
