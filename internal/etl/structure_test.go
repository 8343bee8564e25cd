package etl_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intake/internal/etl"
)

func co2Descriptor() *etl.SchemaDescriptor {
	return &etl.SchemaDescriptor{
		Name:     "co2_weekly_mlo",
		Location: "https://gml.noaa.gov/webdata/ccgg/trends/co2/co2_weekly_mlo.csv",
		Fields: []etl.FieldRule{
			{Name: "year", Rule: etl.CoerceInt},
			{Name: "month", Rule: etl.CoerceInt},
			{Name: "day", Rule: etl.CoerceInt},
			{Name: "decimal", Rule: etl.CoerceFloat},
			{Name: "average", Rule: etl.CoerceFloat},
			{Name: "ndays", Rule: etl.CoerceFloat},
			{Name: "1_year_ago", Rule: etl.CoerceFloat},
			{Name: "10_years_ago", Rule: etl.CoerceFloat},
			{Name: "increase_since_1800", Rule: etl.CoerceFloat},
		},
		IgnoreSymbol: "#",
	}
}

func TestCoercion_Apply(t *testing.T) {
	v, err := etl.CoerceInt.Apply(" 42 ")
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)

	v, err = etl.CoerceFloat.Apply("-999.99")
	require.NoError(t, err)
	assert.Equal(t, -999.99, v)

	v, err = etl.CoerceString.Apply(" MLO ")
	require.NoError(t, err)
	assert.Equal(t, " MLO ", v)

	_, err = etl.CoerceInt.Apply("5.0")
	assert.Error(t, err)
}

func TestParseCoercion(t *testing.T) {
	for _, name := range []string{"int", "float", "str"} {
		c, err := etl.ParseCoercion(name)
		require.NoError(t, err)
		assert.Equal(t, etl.Coercion(name), c)
	}
	_, err := etl.ParseCoercion("lambda x: x")
	assert.Error(t, err)
	_, err = etl.ParseCoercion("")
	assert.Error(t, err)
}

func TestLineFilter_Keep(t *testing.T) {
	f := etl.NewLineFilter(co2Descriptor())

	assert.False(t, f.Keep("# Mauna Loa weekly CO2"))
	assert.False(t, f.Keep("#"))
	assert.False(t, f.Keep("year,month,day,decimal,average,ndays,1 year ago,10 years ago,increase since 1800"))
	assert.False(t, f.Keep("year,month,day,decimal,average,ndays,1_year_ago,10_years_ago,increase_since_1800"))
	assert.True(t, f.Keep("1974,5,19,1974.3795,333.37,5,-999.99,-999.99,50.40"))
	assert.True(t, f.Keep(" # indented is not a comment"))
	assert.True(t, f.Keep("Year,month,day,decimal,average,ndays,1 year ago,10 years ago,increase since 1800"))
}

func TestLineFilter_PreservesOrder(t *testing.T) {
	f := etl.NewLineFilter(co2Descriptor())
	in := []string{"# a", "3", "1", "# b", "2"}
	var out []string
	for _, l := range in {
		if f.Keep(l) {
			out = append(out, l)
		}
	}
	assert.Equal(t, []string{"3", "1", "2"}, out)
}

func TestRowStructurer_Structure(t *testing.T) {
	s := etl.NewRowStructurer(co2Descriptor())

	rec, err := s.Structure("1974,5,19,1974.3795,333.37,5,-999.99,-999.99,50.40")
	require.NoError(t, err)
	assert.Len(t, rec.Data, 9)
	assert.Equal(t, int64(1974), rec.Data["year"])
	assert.Equal(t, int64(5), rec.Data["month"])
	assert.Equal(t, int64(19), rec.Data["day"])
	assert.Equal(t, 1974.3795, rec.Data["decimal"])
	assert.Equal(t, 333.37, rec.Data["average"])
	assert.Equal(t, 5.0, rec.Data["ndays"])
	assert.Equal(t, -999.99, rec.Data["1_year_ago"])
	assert.Equal(t, -999.99, rec.Data["10_years_ago"])
	assert.Equal(t, 50.40, rec.Data["increase_since_1800"])
}

func TestRowStructurer_ShapeMismatch(t *testing.T) {
	s := etl.NewRowStructurer(co2Descriptor())

	_, err := s.Structure("1974,5,19,1974.3795,333.37,5,-999.99,-999.99")
	var shapeErr *etl.RowShapeError
	require.ErrorAs(t, err, &shapeErr)
	assert.Equal(t, 9, shapeErr.Want)
	assert.Equal(t, 8, shapeErr.Got)

	_, err = s.Structure("")
	require.ErrorAs(t, err, &shapeErr)
	assert.Equal(t, 1, shapeErr.Got)
}

func TestRowStructurer_CoercionError(t *testing.T) {
	s := etl.NewRowStructurer(co2Descriptor())

	_, err := s.Structure("1974,May,19,1974.3795,333.37,5,-999.99,-999.99,50.40")
	var coerceErr *etl.CoercionError
	require.ErrorAs(t, err, &coerceErr)
	assert.Equal(t, "month", coerceErr.Field)
	assert.Equal(t, 1, coerceErr.Index)
	assert.Equal(t, "May", coerceErr.Value)
	assert.Equal(t, etl.CoerceInt, coerceErr.Rule)
}

func TestDeriveDateKey(t *testing.T) {
	rec, err := etl.DeriveDateKey(etl.Record{Data: map[string]any{"year": "1974", "month": "5", "day": "19"}})
	require.NoError(t, err)
	assert.Equal(t, time.Date(1974, time.May, 19, 0, 0, 0, 0, time.UTC), rec.Data[etl.DateKeyField])

	rec, err = etl.DeriveDateKey(etl.Record{Data: map[string]any{"year": int64(1974)}})
	require.NoError(t, err)
	assert.Equal(t, time.Date(1974, time.January, 1, 0, 0, 0, 0, time.UTC), rec.Data[etl.DateKeyField])

	rec, err = etl.DeriveDateKey(etl.Record{Data: map[string]any{"year": int64(1983), "month": int64(7)}})
	require.NoError(t, err)
	assert.Equal(t, time.Date(1983, time.July, 1, 0, 0, 0, 0, time.UTC), rec.Data[etl.DateKeyField])
}

func TestDeriveDateKey_Idempotent(t *testing.T) {
	mk := func() etl.Record {
		return etl.Record{Data: map[string]any{"year": int64(2020), "month": int64(2), "day": int64(29)}}
	}
	a, err := etl.DeriveDateKey(mk())
	require.NoError(t, err)
	b, err := etl.DeriveDateKey(mk())
	require.NoError(t, err)
	assert.Equal(t, a.Data[etl.DateKeyField], b.Data[etl.DateKeyField])
}

func TestDeriveDateKey_Errors(t *testing.T) {
	_, err := etl.DeriveDateKey(etl.Record{Data: map[string]any{"month": int64(5)}})
	var missing *etl.MissingFieldError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "year", missing.Field)

	for _, data := range []map[string]any{
		{"year": int64(1974), "month": int64(13)},
		{"year": int64(1974), "month": int64(5), "day": int64(32)},
		{"year": int64(2021), "month": int64(2), "day": int64(29)},
		{"year": int64(74), "month": int64(5), "day": int64(19)},
	} {
		_, err := etl.DeriveDateKey(etl.Record{Data: data})
		var invalid *etl.InvalidDateError
		assert.ErrorAs(t, err, &invalid, "%v", data)
	}
}

func TestRenameTransform(t *testing.T) {
	rec := etl.Record{Data: map[string]any{"1_year_ago": 1.0, "10_years_ago": 2.0, "decimal": 3.0, "average": 4.0}}
	rec, err := (&etl.RenameTransform{Mapping: etl.CanonicalRenames}).Transform(rec)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"one_year_ago": 1.0, "ten_years_ago": 2.0, "date_decimal": 3.0, "average": 4.0}, rec.Data)
}

func TestOutputSchema(t *testing.T) {
	s := etl.OutputSchema(co2Descriptor())
	assert.Equal(t, []string{
		"year", "month", "day", "date_decimal", "average", "ndays",
		"one_year_ago", "ten_years_ago", "increase_since_1800", "yyyymmdd",
	}, s.FieldNames())
	assert.Equal(t, etl.TypeInt, s.Fields[0].Type)
	assert.Equal(t, etl.TypeFloat, s.Fields[3].Type)
	assert.Equal(t, etl.TypeDate, s.Fields[9].Type)
}

func TestProcessPartition(t *testing.T) {
	lines := []string{
		"# header comment",
		"year,month,day,decimal,average,ndays,1 year ago,10 years ago,increase since 1800",
		"1974,5,19,1974.3795,333.37,5,-999.99,-999.99,50.40",
		"1974,5,26,1974.3986,332.95,6,-999.99,-999.99,50.06",
	}
	recs, err := etl.ProcessPartition(co2Descriptor(), lines)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	first := recs[0]
	assert.Len(t, first.Data, 10)
	assert.Equal(t, 1974.3795, first.Data["date_decimal"])
	assert.Equal(t, -999.99, first.Data["one_year_ago"])
	assert.Equal(t, time.Date(1974, time.May, 19, 0, 0, 0, 0, time.UTC), first.Data["yyyymmdd"])
	assert.NotContains(t, first.Data, "decimal")
	assert.Equal(t, int64(26), recs[1].Data["day"])
}

func TestProcessPartition_FailsWholePartition(t *testing.T) {
	lines := []string{
		"1974,5,19,1974.3795,333.37,5,-999.99,-999.99,50.40",
		"1974,5,26,1974.3986,332.95,6,-999.99,-999.99",
	}
	recs, err := etl.ProcessPartition(co2Descriptor(), lines)
	var shapeErr *etl.RowShapeError
	require.ErrorAs(t, err, &shapeErr)
	assert.Nil(t, recs)
}

func TestDescriptor_HeaderAndTable(t *testing.T) {
	d := co2Descriptor()
	assert.Equal(t, "year,month,day,decimal,average,ndays,1_year_ago,10_years_ago,increase_since_1800", d.HeaderLine())
	assert.Equal(t, "co2_weekly_mlo", d.TableName())
	d.Table = "public.co2_weekly_mlo"
	assert.Equal(t, "public.co2_weekly_mlo", d.TableName())
}

func TestProcessPartition_RejectsCollidingFields(t *testing.T) {
	line := "1974,5,19,1974.3795,333.37,5,1.5,-999.99,2.5"

	d := co2Descriptor()
	d.Fields[8].Name = "one_year_ago"
	recs, err := etl.ProcessPartition(d, []string{line})
	var collision *etl.FieldCollisionError
	require.ErrorAs(t, err, &collision)
	assert.Equal(t, "one_year_ago", collision.Field)
	assert.Nil(t, recs)

	d = co2Descriptor()
	d.Fields[8] = etl.FieldRule{Name: etl.DateKeyField, Rule: etl.CoerceString}
	_, err = etl.ProcessPartition(d, []string{"1974,5,19,1974.3795,333.37,5,1.5,-999.99,hello"})
	require.ErrorAs(t, err, &collision)
	assert.Equal(t, etl.DateKeyField, collision.Field)
}

func TestRenameTransform_RefusesOverwrite(t *testing.T) {
	tr := &etl.RenameTransform{Mapping: etl.CanonicalRenames}
	_, err := tr.Transform(etl.Record{Data: map[string]any{"1_year_ago": 1.5, "one_year_ago": 2.5}})
	var collision *etl.FieldCollisionError
	require.ErrorAs(t, err, &collision)
	assert.Equal(t, "one_year_ago", collision.Field)

	r, err := tr.Transform(etl.Record{Data: map[string]any{"1_year_ago": 1.5}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"one_year_ago": 1.5}, r.Data)
}
