package host

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"sqlsvc/internal/language"
)

type orderedCloser struct {
	name  string
	order *[]string
	err   error
}

func (c orderedCloser) Close() error {
	*c.order = append(*c.order, c.name)
	return c.err
}

func TestListClosesInReverseOrder(t *testing.T) {
	var order []string
	l := NewList()

	l.RegisterDisposable(orderedCloser{name: "first", order: &order})
	l.RegisterDisposable(orderedCloser{name: "second", order: &order})
	l.RegisterDisposable(orderedCloser{name: "third", order: &order})

	assert.NoError(t, l.Close())
	assert.Equal(t, []string{"third", "second", "first"}, order)
}

func TestListCloseReturnsFirstError(t *testing.T) {
	var order []string
	wantErr := errors.New("dispose failed")

	l := NewList()
	l.RegisterDisposable(orderedCloser{name: "ok", order: &order})
	l.RegisterDisposable(orderedCloser{name: "bad", order: &order, err: wantErr})

	err := l.Close()
	assert.ErrorIs(t, err, wantErr)
	// All disposables still run.
	assert.Len(t, order, 2)
}

func TestListCloseIsDraining(t *testing.T) {
	var order []string
	l := NewList()
	l.RegisterDisposable(orderedCloser{name: "once", order: &order})

	assert.NoError(t, l.Close())
	assert.NoError(t, l.Close())
	assert.Equal(t, []string{"once"}, order)
}

func TestRegisterLanguage(t *testing.T) {
	l := NewList()
	l.RegisterLanguage(language.SQL())

	langs := l.Languages()
	assert.Len(t, langs, 1)
	assert.Equal(t, "sql", langs[0].ID)
}
