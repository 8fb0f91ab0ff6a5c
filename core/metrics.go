package core

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	loginTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "urak_auth_login_total",
		Help: "Login attempts by outcome.",
	}, []string{"outcome"})

	validateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "urak_auth_validate_total",
		Help: "Session validations by outcome.",
	}, []string{"outcome"})

	csrfRejectTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "urak_auth_csrf_reject_total",
		Help: "Requests rejected by the csrf double-submit check.",
	})
)

func observeLogin(outcome string)    { loginTotal.WithLabelValues(outcome).Inc() }
func observeValidate(outcome string) { validateTotal.WithLabelValues(outcome).Inc() }
func observeCSRFReject()             { csrfRejectTotal.Inc() }
