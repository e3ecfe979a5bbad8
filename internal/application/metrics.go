package application

import "expvar"

// Counters published under /api/debug/vars as "auth".
var authMetrics = expvar.NewMap("auth")

const (
	metricRegistrations   = "registrations"
	metricLogins          = "logins"
	metricLoginFailures   = "login_failures"
	metricRefreshes       = "refreshes"
	metricPasswordChanges = "password_changes"
	metricPasswordResets  = "password_resets"
	metricVerifications   = "email_verifications"
	metricEmailsQueued    = "emails_dispatched"
	metricEmailFailures   = "email_dispatch_failures"
	metricLogouts         = "logouts"
)

func count(name string) { authMetrics.Add(name, 1) }
