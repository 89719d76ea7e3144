package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jtl-software/connector-components-xtc/internal/core"
	"github.com/jtl-software/connector-components-xtc/internal/identity"
	"github.com/jtl-software/connector-components-xtc/internal/mapping"
	"github.com/jtl-software/connector-components-xtc/internal/row"
	"github.com/jtl-software/connector-components-xtc/internal/schema"
)

type regI18n struct {
	ProductID   int64 `orm:"productId"`
	LanguageISO string
	Name        string
}

type regProduct struct {
	ID      identity.Identity
	SKU     string `orm:"sku"`
	Created time.Time
	I18ns   []*regI18n
}

func (p *regProduct) AddI18n(i *regI18n) { p.I18ns = append(p.I18ns, i) }

type regCategory struct {
	ID    identity.Identity
	Names []*regI18n
	Items []*regProduct
}

const regYAML = `
Product:
  table: tartikel
  identity: getId
  where: kArtikel
  mapPull:
    id: kArtikel
    sku: cArtNr
    created: ~
    i18ns: ProductI18n|addI18n
  mapPush:
    kArtikel: id
    cArtNr: sku
    dErstellt: ~
    ProductI18n|addI18n: i18ns

ProductI18n:
  table: tartikelsprache
  query: SELECT * FROM tartikelsprache WHERE kArtikel = [[kArtikel]]
  where: [kArtikel, cISO]
  getMethod: getI18ns
  mapPull:
    productId: kArtikel
    languageISO: cISO
    name: cName
  mapPush:
    kArtikel: productId
    cISO: languageISO
    cName: name
`

func productDefs() []*Definition {
	return []*Definition{
		{
			Name: "Product",
			New:  func() any { return &regProduct{} },
			Computations: Computations{
				Pull: map[string]PullFunc{
					"created": func(ctx context.Context, r *row.Row) (row.Value, error) {
						return row.Time(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)), nil
					},
				},
				Push: map[string]PushFunc{
					"dErstellt": func(ctx context.Context, model, parentModel any, parentRow *row.Row) (row.Value, error) {
						return row.Time(model.(*regProduct).Created), nil
					},
				},
			},
		},
		{
			Name: "ProductI18n",
			New:  func() any { return &regI18n{} },
		},
	}
}

func newLoadedRegistry(t *testing.T, defs []*Definition, yamlDoc string) *Registry {
	t.Helper()
	reg := NewRegistry(nil)
	for _, def := range defs {
		require.NoError(t, reg.Register(def))
	}
	set, err := mapping.Parse([]byte(yamlDoc))
	require.NoError(t, err)
	require.NoError(t, reg.Load(set))
	return reg
}

func TestRegistryCompilesEntries(t *testing.T) {
	reg := newLoadedRegistry(t, productDefs(), regYAML)
	require.NoError(t, reg.Validate())

	assert.Equal(t, []string{"Product", "ProductI18n"}, reg.List())
	assert.Equal(t, 2, reg.Count())
	assert.True(t, reg.Has("Product"))

	e, err := reg.Get("Product")
	require.NoError(t, err)
	assert.Equal(t, "Product", e.Name)
	assert.Equal(t, "regProduct", e.Type.Name())
	require.NotNil(t, e.Identity)
	assert.Equal(t, "id", e.Identity.Name)
	assert.Equal(t, []string{"kArtikel"}, e.WhereColumns())

	require.Len(t, e.Pull, 4)
	assert.Equal(t, "kArtikel", e.Pull[0].Column)
	assert.Nil(t, e.Pull[0].Compute)
	assert.Equal(t, mapping.SourceComputation, e.Pull[2].Kind)
	assert.NotNil(t, e.Pull[2].Compute)
	assert.Equal(t, "ProductI18n", e.Pull[3].Mapper)
	assert.NotNil(t, e.Pull[3].Setter)

	require.Len(t, e.Push, 4)
	assert.Equal(t, "kArtikel", e.Push[0].Column)
	assert.True(t, e.Push[0].Property.IsIdentity())
	assert.NotNil(t, e.Push[2].Compute)
	assert.Equal(t, "ProductI18n", e.Push[3].Mapper)
	assert.False(t, e.Push[3].Recurse)

	// entries are cached
	again, err := reg.Get("Product")
	require.NoError(t, err)
	assert.Same(t, e, again)
}

func TestRegistryCompiledSetterAppends(t *testing.T) {
	reg := newLoadedRegistry(t, productDefs(), regYAML)
	e, err := reg.Get("Product")
	require.NoError(t, err)

	p := &regProduct{}
	require.NoError(t, e.Pull[3].Setter(p, &regI18n{LanguageISO: "de"}))
	require.Len(t, p.I18ns, 1)
	assert.Equal(t, "de", p.I18ns[0].LanguageISO)
}

func TestRegistryGetUnknown(t *testing.T) {
	reg := NewRegistry(nil)
	_, err := reg.Get("Nope")
	assert.ErrorIs(t, err, ErrMapperNotFound)
	assert.ErrorIs(t, reg.Unregister("Nope"), ErrMapperNotFound)
}

func TestRegistryRegisterRejectsIncompleteDefinitions(t *testing.T) {
	reg := NewRegistry(nil)
	assert.Error(t, reg.Register(nil))
	assert.Error(t, reg.Register(&Definition{New: func() any { return &regProduct{} }}))
	assert.Error(t, reg.Register(&Definition{Name: "Product"}))
}

func TestRegistryRegisterCopiesSharedConfig(t *testing.T) {
	shared := &mapping.Config{Table: "tnotiz", Push: mapping.PushMap{
		{Column: "cText", Property: "sku", Source: mapping.FromField("sku")},
	}}
	reg := NewRegistry(nil)
	require.NoError(t, reg.Register(&Definition{Name: "Note", New: func() any { return &regProduct{} }, Config: shared}))
	require.NoError(t, reg.Register(&Definition{Name: "Memo", New: func() any { return &regProduct{} }, Config: shared}))

	note, err := reg.Get("Note")
	require.NoError(t, err)
	memo, err := reg.Get("Memo")
	require.NoError(t, err)
	assert.Equal(t, "Note", note.Config.Name)
	assert.Equal(t, "Memo", memo.Config.Name)
	assert.Empty(t, shared.Name)
}

func TestRegistryLoadUnknownEntity(t *testing.T) {
	reg := NewRegistry(nil)
	set, err := mapping.Parse([]byte("Ghost:\n  table: tghost\n"))
	require.NoError(t, err)

	err = reg.Load(set)
	assert.ErrorIs(t, err, ErrMapperNotFound)
	assert.Contains(t, err.Error(), "Ghost")
}

func TestRegistryMissingConfig(t *testing.T) {
	reg := NewRegistry(nil)
	require.NoError(t, reg.Register(&Definition{Name: "Product", New: func() any { return &regProduct{} }}))

	_, err := reg.Get("Product")
	assert.ErrorIs(t, err, ErrMissingConfig)
	assert.ErrorIs(t, err, mapping.ErrInvalidConfig)
}

func TestRegistryValidateReportsConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		defs    func() []*Definition
		yaml    string
		wantErr error
		wantMsg string
	}{
		{
			name: "missing push computation",
			defs: func() []*Definition {
				defs := productDefs()
				defs[0].Computations.Push = nil
				return defs
			},
			yaml:    regYAML,
			wantMsg: "dErstellt",
		},
		{
			name: "missing pull computation",
			defs: func() []*Definition {
				defs := productDefs()
				defs[0].Computations.Pull = nil
				return defs
			},
			yaml:    regYAML,
			wantMsg: "mapPull.created",
		},
		{
			name:    "unknown property",
			defs:    productDefs,
			yaml:    "Product:\n  table: tartikel\n  mapPull:\n    weight: fGewicht\n",
			wantErr: schema.ErrUnknownProperty,
		},
		{
			name:    "unknown sub-mapper",
			defs:    productDefs,
			yaml:    "Product:\n  table: tartikel\n  mapPull:\n    i18ns: Missing|addI18n\n",
			wantErr: ErrMapperNotFound,
		},
		{
			name:    "scalar property with mapper syntax",
			defs:    productDefs,
			yaml:    "Product:\n  table: tartikel\n  mapPull:\n    sku: ProductI18n|addI18n\n",
			wantMsg: "not a navigation property",
		},
		{
			name:    "navigation property with field syntax",
			defs:    productDefs,
			yaml:    "Product:\n  table: tartikel\n  mapPull:\n    i18ns: cName\n",
			wantMsg: "SubMapper|setter",
		},
		{
			name:    "unresolvable setter",
			defs:    productDefs,
			yaml:    "Product:\n  table: tartikel\n  mapPull:\n    i18ns: ProductI18n|addTranslation\n",
			wantErr: schema.ErrUnknownMethod,
		},
		{
			name:    "identity accessor on scalar",
			defs:    productDefs,
			yaml:    "Product:\n  table: tartikel\n  identity: getSku\n  where: kArtikel\n",
			wantErr: schema.ErrTypeMismatch,
		},
		{
			name: "push sub-mapper without getMethod for another type",
			defs: productDefs,
			yaml: "Product:\n  table: tartikel\n  mapPush:\n    ProductI18n|addI18n: i18ns\n" +
				"ProductI18n:\n  table: tartikelsprache\n  mapPush:\n    cName: name\n",
			wantErr: schema.ErrTypeMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := newLoadedRegistry(t, tt.defs(), tt.yaml)
			err := reg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, mapping.ErrInvalidConfig)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestRegistryPullSubMapperTypeMismatch(t *testing.T) {
	defs := []*Definition{
		{Name: "Category", New: func() any { return &regCategory{} }},
		{Name: "Product", New: func() any { return &regProduct{} }},
	}
	doc := "Category:\n  table: tkategorie\n  mapPull:\n    names: Product|\n" +
		"Product:\n  table: tartikel\n  mapPull:\n    sku: cArtNr\n"

	reg := newLoadedRegistry(t, defs, doc)
	_, err := reg.Get("Category")
	assert.ErrorIs(t, err, schema.ErrTypeMismatch)

	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "Category", cfgErr.Entity)
	assert.Equal(t, "mapPull.names", cfgErr.Field)
}

func TestRegistryRegisterInvalidatesEntries(t *testing.T) {
	reg := newLoadedRegistry(t, productDefs(), regYAML)
	first, err := reg.Get("ProductI18n")
	require.NoError(t, err)

	require.NoError(t, reg.Register(&Definition{
		Name:   "Other",
		New:    func() any { return &regI18n{} },
		Config: &mapping.Config{Table: "tother"},
	}))
	second, err := reg.Get("ProductI18n")
	require.NoError(t, err)
	assert.NotSame(t, first, second)

	other, err := reg.Get("Other")
	require.NoError(t, err)
	assert.Equal(t, "Other", other.Config.Name)

	reg.Clear()
	assert.Zero(t, reg.Count())
}

type fakeInspector map[string]*core.TableSchema

func (f fakeInspector) GetSchema(ctx context.Context, table string) (*core.TableSchema, error) {
	ts, ok := f[table]
	if !ok {
		return nil, errors.New("table not found")
	}
	return ts, nil
}

func columns(table string, cols ...string) *core.TableSchema {
	ts := &core.TableSchema{Table: table}
	for i := 0; i < len(cols); i += 2 {
		ts.Columns = append(ts.Columns, core.Column{Name: cols[i], Type: cols[i+1]})
	}
	return ts
}

func TestRegistryVerify(t *testing.T) {
	reg := newLoadedRegistry(t, productDefs(), regYAML)

	inspector := fakeInspector{
		"tartikel": columns("tartikel",
			"kArtikel", "INT", "cArtNr", "VARCHAR(255)", "dErstellt", "DATETIME"),
		"tartikelsprache": columns("tartikelsprache",
			"kArtikel", "INT", "cISO", "VARCHAR(3)", "cName", "VARCHAR(255)"),
	}
	require.NoError(t, reg.Verify(context.Background(), inspector))

	inspector["tartikelsprache"] = columns("tartikelsprache", "kArtikel", "INT", "cISO", "VARCHAR(3)")
	err := reg.Verify(context.Background(), inspector)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cName")
	assert.ErrorIs(t, err, mapping.ErrInvalidConfig)

	delete(inspector, "tartikel")
	err = reg.Verify(context.Background(), inspector)
	assert.Contains(t, err.Error(), "failed to read schema of tartikel")
}
