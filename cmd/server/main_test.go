package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"mafaconnect/backend/internal/config"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	cases := map[string]config.Config{
		"short":       {AuthSecret: "short"},
		"repeated":    {AuthSecret: strings.Repeat("a", 40)},
		"placeholder": {AuthSecret: "changeme-changeme-changeme-changeme"},
		"wildcard":    {AuthSecret: "0123456789abcdef0123456789abcdef", Env: "production", AllowedOrigin: "*"},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, validateSecurityConfig(cfg))
		})
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{
		AuthSecret:    "0123456789abcdef0123456789abcdef",
		Env:           "production",
		AllowedOrigin: "https://app.mafaconnect.ng",
	})
	assert.NoError(t, err)
}
