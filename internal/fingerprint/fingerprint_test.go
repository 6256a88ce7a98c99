package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSum_OrderIndependent(t *testing.T) {
	a := New().String("org_id", "o1").Int("amount_cents", 2500).Sum()
	b := New().Int("amount_cents", 2500).String("org_id", "o1").Sum()
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestSum_DistinguishesTypesAndSeparators(t *testing.T) {
	assert.NotEqual(t,
		New().String("amount", "123").Sum(),
		New().Int("amount", 123).Sum())

	assert.NotEqual(t,
		New().String("a", "x|s|1:y").Sum(),
		New().String("a", "x").String("y", "").Sum())

	assert.NotEqual(t,
		New().Null("purpose").Sum(),
		New().String("purpose", "").Sum())
}

func TestOptionalFields(t *testing.T) {
	blank := "   "
	name := " Ada "
	trimmed := "Ada"

	assert.Equal(t, New().Null("donor").Sum(), New().OptText("donor", nil).Sum())
	assert.Equal(t, New().Null("donor").Sum(), New().OptText("donor", &blank).Sum())
	assert.Equal(t, New().OptText("donor", &trimmed).Sum(), New().OptText("donor", &name).Sum())
	assert.NotEqual(t, New().OptString("event", &name).Sum(), New().OptString("event", &trimmed).Sum())
}

func TestNormalizeCurrency(t *testing.T) {
	assert.Equal(t, "usd", NormalizeCurrency(""))
	assert.Equal(t, "eur", NormalizeCurrency(" EUR "))
	assert.Equal(t, New().Currency("c", "USD").Sum(), New().Currency("c", "").Sum())
}
