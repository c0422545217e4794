package validation_test

import (
	stderrors "errors"
	"testing"

	dferrors "github.com/paveg/featurekit/internal/errors"
	"github.com/paveg/featurekit/internal/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockColumnProvider implements ColumnProvider for testing.
type MockColumnProvider struct {
	columns []string
	length  int
}

func (m *MockColumnProvider) HasColumn(name string) bool {
	for _, col := range m.columns {
		if col == name {
			return true
		}
	}
	return false
}

func (m *MockColumnProvider) Columns() []string {
	return m.columns
}

func (m *MockColumnProvider) Len() int {
	return m.length
}

func (m *MockColumnProvider) Width() int {
	return len(m.columns)
}

func TestRequiredColumnsValidator(t *testing.T) {
	mockDF := &MockColumnProvider{columns: []string{"customer_id", "name"}, length: 3}

	t.Run("all present", func(t *testing.T) {
		err := validation.NewRequiredColumnsValidator(mockDF, "customers", "customer_id", "name").Validate()
		require.NoError(t, err)
	})

	t.Run("reports every missing column sorted", func(t *testing.T) {
		err := validation.ValidateRequired(mockDF, "customers", "signup_date", "customer_id", "email")
		require.Error(t, err)

		var schemaErr *dferrors.SchemaError
		require.ErrorAs(t, err, &schemaErr)
		assert.Equal(t, "customers", schemaErr.Table)
		assert.Equal(t, []string{"email", "signup_date"}, schemaErr.Missing)
	})
}

func TestCompoundValidator(t *testing.T) {
	boom := stderrors.New("boom")
	calls := 0
	counting := validation.ValidatorFunc(func() error {
		calls++
		return nil
	})

	t.Run("all pass", func(t *testing.T) {
		v := validation.NewCompoundValidator(counting, counting)
		require.NoError(t, v.Validate())
		assert.Equal(t, 2, calls)
	})

	t.Run("stops at first failure", func(t *testing.T) {
		calls = 0
		v := validation.NewCompoundValidator(
			validation.ValidatorFunc(func() error { return boom }),
			counting,
		)
		assert.ErrorIs(t, v.Validate(), boom)
		assert.Equal(t, 0, calls)
	})
}
