package service

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var catalogColumns = []string{"id", "coleccion", "codigo", "nombre", "nombre_subtipo_recurso", "nombre_provincia", "nombre_municipio", "longitud", "latitud", "imagenes"}

func TestCatalogPointSource_FetchPoints(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows(catalogColumns).
		AddRow(1, "museum", "M1", "Artium", nil, "Araba", "Vitoria-Gasteiz", -2.6699, 42.851, `[{"fuente":"a.jpg"}]`).
		AddRow(2, "museum", nil, "Sin sitio", nil, nil, nil, nil, nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta(catalogSelect+" WHERE coleccion = ? AND nombre ILIKE ? AND nombre_provincia = ? ORDER BY id")).
		WithArgs("museum", "%art%", "Araba").
		WillReturnRows(rows)

	src := NewCatalogPointSource(db)
	records, err := src.FetchPoints(context.Background(), Museum, Filters{"provincia": "Araba", "q": "art", "ignored": "x"})
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "Artium", records[0].Name)
	assert.Equal(t, "M1", records[0].Code)
	assert.True(t, records[0].Placeable())
	assert.Equal(t, []Image{{Source: "a.jpg"}}, records[0].Images)
	assert.False(t, records[1].Placeable())
	assert.Empty(t, records[1].Images)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogPointSource_Init(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS points")).WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, NewCatalogPointSource(db).Init(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogPointSource_Import(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta("INSERT OR REPLACE INTO points"))
	prep.ExpectExec().
		WithArgs(int64(1), "cave", "C1", "Ekain", nil, "Gipuzkoa", nil, -2.27, 43.23, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().
		WithArgs(int64(2), "cave", nil, "Santimamiñe", nil, nil, nil, nil, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	n, err := NewCatalogPointSource(db).Import(context.Background(), []PointRecord{
		{ID: 1, Category: Cave, Code: "C1", Name: "Ekain", Province: "Gipuzkoa", Longitude: Float(-2.27), Latitude: Float(43.23)},
		{ID: 2, Category: Cave, Name: "Santimamiñe"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogPointSource_ImportRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectPrepare(regexp.QuoteMeta("INSERT OR REPLACE INTO points"))
	mock.ExpectRollback()

	_, err = NewCatalogPointSource(db).Import(context.Background(), []PointRecord{{ID: 1}})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
