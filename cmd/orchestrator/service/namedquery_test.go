package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumina/orchestrator/cmd/orchestrator/models"
	"github.com/lumina/orchestrator/common/logger"
)

func TestParse_PlaceholderSubstitution(t *testing.T) {
	parser := NewNamedQueryParser(logger.NewNop())

	q := parser.Parse(2, "roll", "space=p1&n1=p2", []string{"5", "42"})
	require.False(t, q.IsFaulty, q.ErrorMessage)
	require.NotNil(t, q.Space)
	require.NotNil(t, q.Number1)
	assert.Equal(t, 5, *q.Space)
	assert.Equal(t, int64(42), *q.Number1)
	assert.Nil(t, q.String1)
}

func TestParse_LiteralValues(t *testing.T) {
	parser := NewNamedQueryParser(logger.NewNop())

	q := parser.Parse(2, "roll", "s1=bound-volume&space=4", nil)
	require.False(t, q.IsFaulty)
	assert.Equal(t, "bound-volume", *q.String1)
	assert.Equal(t, 4, *q.Space)
}

func TestParse_MissingArgumentFaults(t *testing.T) {
	parser := NewNamedQueryParser(logger.NewNop())

	q := parser.Parse(2, "roll", "s1=p1&n1=p3", []string{"only-one"})
	assert.True(t, q.IsFaulty)
	assert.Contains(t, q.ErrorMessage, "not enough arguments")
}

func TestParse_BadNumberFaults(t *testing.T) {
	parser := NewNamedQueryParser(logger.NewNop())

	q := parser.Parse(2, "roll", "n1=p1", []string{"not-a-number"})
	assert.True(t, q.IsFaulty)
}

func TestParse_AdditionalArgMarker(t *testing.T) {
	parser := NewNamedQueryParser(logger.NewNop())

	// The #= pair appends to the argument list, so p2 resolves to "fixed"
	q := parser.Parse(2, "roll", "#=fixed&s1=p1&s2=p2", []string{"caller-arg"})
	require.False(t, q.IsFaulty, q.ErrorMessage)
	assert.Equal(t, "caller-arg", *q.String1)
	assert.Equal(t, "fixed", *q.String2)
}

func TestParse_EncodedSlashRestored(t *testing.T) {
	parser := NewNamedQueryParser(logger.NewNop())

	q := parser.Parse(2, "roll", "s1=p1", []string{"box%2Ffolder"})
	require.False(t, q.IsFaulty)
	assert.Equal(t, "box/folder", *q.String1)
}

func TestParse_Mappings(t *testing.T) {
	parser := NewNamedQueryParser(logger.NewNop())

	q := parser.Parse(2, "roll", "manifest=s1&sequence=n1&canvas=n2", nil)
	require.False(t, q.IsFaulty)
	assert.Equal(t, models.MappingString1, q.Manifest)
	assert.Equal(t, models.MappingNumber1, q.Sequence)
	assert.Equal(t, models.MappingNumber2, q.Canvas)
}

func TestParse_UnknownMappingFaults(t *testing.T) {
	parser := NewNamedQueryParser(logger.NewNop())

	q := parser.Parse(2, "roll", "canvas=s9", nil)
	assert.True(t, q.IsFaulty)
}

func TestParse_Ordering(t *testing.T) {
	parser := NewNamedQueryParser(logger.NewNop())

	q := parser.Parse(2, "roll", "assetOrder=n1;n2 desc;s1+asc", nil)
	require.False(t, q.IsFaulty, q.ErrorMessage)
	require.Len(t, q.Ordering, 3)
	assert.Equal(t, models.QueryOrder{Field: models.MappingNumber1, Direction: models.OrderAscending}, q.Ordering[0])
	assert.Equal(t, models.QueryOrder{Field: models.MappingNumber2, Direction: models.OrderDescending}, q.Ordering[1])
	assert.Equal(t, models.QueryOrder{Field: models.MappingString1, Direction: models.OrderAscending}, q.Ordering[2])
}

func TestParse_Batches(t *testing.T) {
	parser := NewNamedQueryParser(logger.NewNop())

	q := parser.Parse(2, "recent", "batches=101,102,103", nil)
	require.False(t, q.IsFaulty)
	assert.Equal(t, []int64{101, 102, 103}, q.Batches)
}

func TestParse_UnknownKeyIgnored(t *testing.T) {
	parser := NewNamedQueryParser(logger.NewNop())

	q := parser.Parse(2, "roll", "format=pdf&s1=p1", []string{"vol-1"})
	require.False(t, q.IsFaulty)
	assert.Equal(t, "vol-1", *q.String1)
}

func TestParseStored_StorageKeys(t *testing.T) {
	parser := NewNamedQueryParser(logger.NewNop())

	q := parser.ParseStored(2, "roll", "objectname=tome.pdf&s1=p1", []string{"vol-1"},
		"pdf/{customer}/{queryname}/{args}")
	require.False(t, q.IsFaulty, q.ErrorMessage)
	assert.Equal(t, "tome.pdf", q.ObjectName)
	assert.Equal(t, "pdf/2/roll/vol-1", q.StorageKey)
	assert.Equal(t, "pdf/2/roll/vol-1.json", q.ControlFileKey)
	assert.Equal(t, []string{"vol-1"}, q.Args)
}

func TestParseStored_FaultySkipsKeyExpansion(t *testing.T) {
	parser := NewNamedQueryParser(logger.NewNop())

	q := parser.ParseStored(2, "roll", "s1=p2", []string{"one"}, "pdf/{customer}/{queryname}/{args}")
	assert.True(t, q.IsFaulty)
	assert.Empty(t, q.StorageKey)
}

// stubTemplateStore serves templates from a map keyed by query name
type stubTemplateStore struct {
	templates map[string]*models.NamedQuery
	err       error
}

func (s *stubTemplateStore) GetByName(ctx context.Context, customer int, name string) (*models.NamedQuery, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.templates[name], nil
}

func TestConductorResolve_NoTemplate(t *testing.T) {
	conductor := NewNamedQueryConductor(
		&stubTemplateStore{templates: map[string]*models.NamedQuery{}},
		newMockCatalog(),
		NewNamedQueryParser(logger.NewNop()),
		logger.NewNop(),
	)

	result, err := conductor.Resolve(context.Background(), 2, "missing", nil)
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestConductorResolve_FaultyQueryNotExecuted(t *testing.T) {
	catalog := newMockCatalog()
	catalog.add(testRecord(models.AssetID{Customer: 2, Space: 1, Name: "a"}))
	conductor := NewNamedQueryConductor(
		&stubTemplateStore{templates: map[string]*models.NamedQuery{
			"roll": {Customer: 2, Name: "roll", Template: "s1=p1"},
		}},
		catalog,
		NewNamedQueryParser(logger.NewNop()),
		logger.NewNop(),
	)

	// No args for p1: parse fails and the catalog must not be queried
	result, err := conductor.Resolve(context.Background(), 2, "roll", nil)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.ParsedQuery.IsFaulty)
	assert.Empty(t, result.Results)
}

func TestConductorResolve_ExecutesQuery(t *testing.T) {
	catalog := newMockCatalog()
	catalog.add(testRecord(models.AssetID{Customer: 2, Space: 1, Name: "a"}))
	catalog.add(testRecord(models.AssetID{Customer: 2, Space: 1, Name: "b"}))
	conductor := NewNamedQueryConductor(
		&stubTemplateStore{templates: map[string]*models.NamedQuery{
			"roll": {Customer: 2, Name: "roll", Template: "s1=p1"},
		}},
		catalog,
		NewNamedQueryParser(logger.NewNop()),
		logger.NewNop(),
	)

	result, err := conductor.Resolve(context.Background(), 2, "roll", []string{"vol-1"})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.ParsedQuery.IsFaulty)
	assert.Len(t, result.Results, 2)
}

func TestConductorResolveStored(t *testing.T) {
	catalog := newMockCatalog()
	catalog.add(testRecord(models.AssetID{Customer: 2, Space: 1, Name: "a"}))
	conductor := NewNamedQueryConductor(
		&stubTemplateStore{templates: map[string]*models.NamedQuery{
			"roll": {Customer: 2, Name: "roll", Template: "s1=p1"},
		}},
		catalog,
		NewNamedQueryParser(logger.NewNop()),
		logger.NewNop(),
	)

	pq, assets, err := conductor.ResolveStored(context.Background(), 2, "roll", []string{"vol-1"},
		"pdf/{customer}/{queryname}/{args}")
	require.NoError(t, err)
	require.NotNil(t, pq)
	assert.Equal(t, "pdf/2/roll/vol-1", pq.StorageKey)
	assert.Len(t, assets, 1)
}
