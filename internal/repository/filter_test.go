package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testFields = map[string]string{
	"status":     "status",
	"amount":     "amount",
	"name":       "name",
	"deleted_at": "deleted_at",
}

func buildSQL(t *testing.T, f Filter) (string, []interface{}) {
	t.Helper()
	b := psql.Select("id").From("things")
	b, err := f.Apply(b, testFields)
	require.NoError(t, err)
	query, args, err := b.ToSql()
	require.NoError(t, err)
	return query, args
}

func TestFilterEquality(t *testing.T) {
	query, args := buildSQL(t, Filter{"status": "active"})
	assert.Equal(t, "SELECT id FROM things WHERE status = $1", query)
	assert.Equal(t, []interface{}{"active"}, args)
}

func TestFilterIn(t *testing.T) {
	query, args := buildSQL(t, Filter{"status__in": []string{"active", "pending"}})
	assert.Equal(t, "SELECT id FROM things WHERE status IN ($1,$2)", query)
	assert.Len(t, args, 2)
}

func TestFilterNotIn(t *testing.T) {
	query, _ := buildSQL(t, Filter{"status__notin": []string{"failed"}})
	assert.Equal(t, "SELECT id FROM things WHERE status NOT IN ($1)", query)
}

func TestFilterComparisons(t *testing.T) {
	for op, want := range map[string]string{
		"lt":  "SELECT id FROM things WHERE amount < $1",
		"lte": "SELECT id FROM things WHERE amount <= $1",
		"gt":  "SELECT id FROM things WHERE amount > $1",
		"gte": "SELECT id FROM things WHERE amount >= $1",
	} {
		query, _ := buildSQL(t, Filter{"amount__" + op: 100})
		assert.Equal(t, want, query, "operator %s", op)
	}
}

func TestFilterIContains(t *testing.T) {
	query, args := buildSQL(t, Filter{"name__icontains": "slot"})
	assert.Equal(t, "SELECT id FROM things WHERE name ILIKE $1", query)
	assert.Equal(t, []interface{}{"%slot%"}, args)
}

func TestFilterIsNull(t *testing.T) {
	query, _ := buildSQL(t, Filter{"deleted_at__isnull": true})
	assert.Equal(t, "SELECT id FROM things WHERE deleted_at IS NULL", query)

	query, _ = buildSQL(t, Filter{"deleted_at__isnull": false})
	assert.Equal(t, "SELECT id FROM things WHERE deleted_at IS NOT NULL", query)
}

func TestFilterRejectsUnknownField(t *testing.T) {
	b := psql.Select("id").From("things")
	_, err := Filter{"password": "x"}.Apply(b, testFields)
	assert.ErrorContains(t, err, "unknown filter field")
}

func TestFilterRejectsUnknownOperator(t *testing.T) {
	b := psql.Select("id").From("things")
	_, err := Filter{"amount__regex": "x"}.Apply(b, testFields)
	assert.ErrorContains(t, err, "unknown filter operator")
}

func TestPageClampsLimit(t *testing.T) {
	query, _, err := Page{}.ApplyPage(psql.Select("id").From("things")).ToSql()
	require.NoError(t, err)
	assert.Contains(t, query, "LIMIT 50")

	query, _, err = Page{Limit: 9999, Skip: 20}.ApplyPage(psql.Select("id").From("things")).ToSql()
	require.NoError(t, err)
	assert.Contains(t, query, "LIMIT 500")
	assert.Contains(t, query, "OFFSET 20")
}

func TestSortWhitelist(t *testing.T) {
	b, err := Sort{Field: "amount", Desc: true}.ApplySort(psql.Select("id").From("things"), testFields)
	require.NoError(t, err)
	query, _, err := b.ToSql()
	require.NoError(t, err)
	assert.Contains(t, query, "ORDER BY amount DESC")

	_, err = Sort{Field: "password"}.ApplySort(psql.Select("id").From("things"), testFields)
	assert.ErrorContains(t, err, "unknown sort field")
}
