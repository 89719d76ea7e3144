// Package mapping holds the declarative per-entity mapping configuration
// and its YAML loader.
//
// A mapping file is a document keyed by entity (mapper) name:
//
//	Product:
//	  table: tartikel
//	  identity: getId
//	  where: kArtikel
//	  statisticsQuery: SELECT COUNT(*) AS total FROM tartikel
//	  mapPull:
//	    id: kArtikel                  # property <- column
//	    sku: cArtNr
//	    i18ns: ProductI18n|addI18n    # navigation <- sub-mapper|setter
//	  mapPush:
//	    kArtikel: id                  # column <- property
//	    cArtNr: sku
//	    dErstellt: ~                  # computed by the "dErstellt" push computation
//	    ProductI18n|addI18n: i18ns    # pushed after the parent row is written
//	    ProductPrice|addPrice|1: prices  # pushed before, merging into the parent row
//
//	ProductI18n:
//	  query: SELECT * FROM tartikelsprache WHERE kArtikel = [[kArtikel]]
//	  table: tartikelsprache
//	  where: [kArtikel, kSprache]
//	  getMethod: getI18ns
//
// mapPull and mapPush keep their declaration order; the engine walks them
// in that order. Every entry decodes into a ColumnSource: a field, a named
// computation or a sub-mapper.
//
// Configurations are immutable once loaded and shared read-only by every
// mapper built from them.
package mapping
