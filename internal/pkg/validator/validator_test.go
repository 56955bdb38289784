package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type searchInput struct {
	Platforms []string `json:"platforms" validate:"max=20,dive,filter_code"`
	State     string   `json:"state" validate:"us_state"`
}

type grantInput struct {
	Amount int    `json:"amount" validate:"required,min=1,max=1000000"`
	Type   string `json:"type" validate:"required,grant_type"`
}

func TestValidateFilterCodes(t *testing.T) {
	assert.Nil(t, Validate(&searchInput{Platforms: []string{"EZ", "IA"}, State: "TX"}))

	errs := Validate(&searchInput{Platforms: []string{"bad code!"}, State: "Texas"})
	assert.Equal(t, "Invalid filter code", errs["platforms[0]"])
	assert.Equal(t, "Invalid state. Must be a two-letter code", errs["state"])
}

func TestValidateGrant(t *testing.T) {
	assert.Nil(t, Validate(&grantInput{Amount: 5, Type: "referral_bonus"}))

	errs := Validate(&grantInput{Amount: 0, Type: "gift"})
	assert.Equal(t, "This field is required", errs["amount"])
	assert.Contains(t, errs["type"], "Invalid grant type")
}
