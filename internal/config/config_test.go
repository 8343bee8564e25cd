package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intake/internal/config"
	"intake/internal/etl"
	"intake/internal/secret"
)

// ── Source descriptors ─────────────────────────────────────

func TestLoadSource_Embedded(t *testing.T) {
	d, err := config.LoadSource("co2_weekly_mlo")
	require.NoError(t, err)
	assert.Equal(t, "co2_weekly_mlo", d.Name)
	assert.Equal(t, "https://gml.noaa.gov/webdata/ccgg/trends/co2/co2_weekly_mlo.csv", d.Location)
	assert.Equal(t, "#", d.IgnoreSymbol)
	assert.Equal(t, "year,month,day,decimal,average,ndays,1_year_ago,10_years_ago,increase_since_1800", d.HeaderLine())
	assert.Equal(t, etl.CoerceInt, d.Fields[2].Rule)
	assert.Equal(t, etl.CoerceFloat, d.Fields[8].Rule)
	assert.Equal(t, "co2_weekly_mlo", d.TableName())

	d, err = config.LoadSource("ch4_mm_gl")
	require.NoError(t, err)
	assert.Equal(t, "year,month,decimal,average,average_unc,trend,trend_unc", d.HeaderLine())
}

func TestLoadSource_NotFound(t *testing.T) {
	for _, name := range []string{"n2o_mm_gl", "", "../secrets", "co2_weekly_mlo.yml"} {
		_, err := config.LoadSource(name)
		var nf *config.ConfigNotFoundError
		assert.ErrorAs(t, err, &nf, name)
	}
}

func TestParseSource_Errors(t *testing.T) {
	cases := map[string]string{
		"invalid yaml":         "source: [unterminated",
		"missing source":       "header_keys:\n  year: int\nignore_symbol: '#'\n",
		"missing header_keys":  "source: x.csv\nignore_symbol: '#'\n",
		"empty header_keys":    "source: x.csv\nheader_keys: {}\nignore_symbol: '#'\n",
		"header_keys a list":   "source: x.csv\nheader_keys: [year]\nignore_symbol: '#'\n",
		"missing ignore":       "source: x.csv\nheader_keys:\n  year: int\n",
		"long ignore":          "source: x.csv\nheader_keys:\n  year: int\nignore_symbol: '//'\n",
		"unknown rule":         "source: x.csv\nheader_keys:\n  year: \"lambda x: int(x)\"\nignore_symbol: '#'\n",
		"duplicate header key": "source: x.csv\nheader_keys:\n  year: int\n  year: float\nignore_symbol: '#'\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := config.ParseSource("custom", []byte(doc))
			var pe *config.ConfigParseError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, "custom", pe.Source)
		})
	}
}

func TestParseSource_RejectsCollidingColumns(t *testing.T) {
	cases := map[string]struct {
		keys  string
		field string
	}{
		"date key":      {"year: int\n  yyyymmdd: str", etl.DateKeyField},
		"one year ago":  {"1_year_ago: float\n  one_year_ago: float", "one_year_ago"},
		"ten years ago": {"ten_years_ago: float\n  10_years_ago: float", "ten_years_ago"},
		"decimal":       {"decimal: float\n  date_decimal: float", "date_decimal"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			doc := "source: x.csv\nheader_keys:\n  " + tc.keys + "\nignore_symbol: '#'\n"
			_, err := config.ParseSource("custom", []byte(doc))
			var pe *config.ConfigParseError
			require.ErrorAs(t, err, &pe)
			var collision *etl.FieldCollisionError
			require.ErrorAs(t, err, &collision)
			assert.Equal(t, tc.field, collision.Field)
		})
	}

	// A rename target without its source key is an ordinary column.
	d, err := config.ParseSource("custom", []byte("source: x.csv\nheader_keys:\n  year: int\n  one_year_ago: float\nignore_symbol: '#'\n"))
	require.NoError(t, err)
	assert.Equal(t, "year,one_year_ago", d.HeaderLine())
}

func TestParseSource_PreservesOrderAndIgnoresUnknownKeys(t *testing.T) {
	doc := "source: s3://noaa/raw/n2o.csv\nowner: gml\ntable: n2o_monthly\nheader_keys:\n  year: int\n  site: str\n  average: float\n  month: int\nignore_symbol: '%'\n"
	d, err := config.ParseSource("n2o", []byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "year,site,average,month", d.HeaderLine())
	assert.Equal(t, etl.CoerceString, d.Fields[1].Rule)
	assert.Equal(t, "%", d.IgnoreSymbol)
	assert.Equal(t, "n2o_monthly", d.TableName())
}

func TestSourceLoader_DirShadowsEmbedded(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "co2_weekly_mlo.yml"),
		[]byte("source: /mnt/mirror/co2.csv\nheader_keys:\n  year: int\nignore_symbol: '#'\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sf6_mm_gl.yml"),
		[]byte("source: /mnt/mirror/sf6.csv\nheader_keys:\n  year: int\n  month: int\nignore_symbol: '#'\n"), 0o644))

	l := &config.SourceLoader{Dir: dir}
	d, err := l.Load("co2_weekly_mlo")
	require.NoError(t, err)
	assert.Equal(t, "/mnt/mirror/co2.csv", d.Location)

	d, err = l.Load("ch4_mm_gl")
	require.NoError(t, err)
	assert.Contains(t, d.Location, "ch4_mm_gl.csv")

	names, err := l.Names()
	require.NoError(t, err)
	assert.Equal(t, []string{"ch4_mm_gl", "co2_weekly_mlo", "sf6_mm_gl"}, names)
}

func TestSourceLoader_MissingDir(t *testing.T) {
	l := &config.SourceLoader{Dir: filepath.Join(t.TempDir(), "absent")}
	names, err := l.Names()
	require.NoError(t, err)
	assert.Equal(t, []string{"ch4_mm_gl", "co2_weekly_mlo"}, names)
}

// ── Runtime configuration ──────────────────────────────────

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "none.yml"))
	require.NoError(t, err)
	assert.Equal(t, config.DefaultSources, cfg.Sources)
	assert.Equal(t, "@daily", cfg.Schedule)
	assert.Equal(t, 5000, cfg.PartitionSize)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "intake.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_home: s3://planet-pulse/lake
sources: [co2_weekly_mlo]
schedule: "0 6 * * *"
workers: 2
http_timeout: 30s
database:
  driver: mysql
  host: db.internal
  port: 3306
  name: climate
  table_prefix: raw_
aws:
  region: eu-west-1
`), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "s3://planet-pulse/lake", cfg.DataHome)
	assert.Equal(t, []string{"co2_weekly_mlo"}, cfg.Sources)
	assert.Equal(t, "0 6 * * *", cfg.Schedule)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, 5000, cfg.PartitionSize)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, "raw_co2_weekly_mlo", cfg.TableFor("co2_weekly_mlo"))
	assert.Equal(t, "eu-west-1", cfg.AWS.Region)
}

func TestLoad_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "intake.yml")
	require.NoError(t, os.WriteFile(path, []byte("sources: []\n"), 0o644))
	_, err := config.Load(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("workers: [1\n"), 0o644))
	_, err = config.Load(path)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"PLANET_PULSE_DATA_HOME": "/srv/lake",
		"DB_URL":                 "jdbc:postgresql://db:5432/climate",
		"DB_USER":                "loader",
		"DB_PSWRD":               "s3cret",
		"AWS_ACCESS_KEY_ID":      "AKIA",
		"PLANET_PULSE_WORKERS":   "nope",
	}
	cfg := config.Default()
	cfg.ApplyEnv(func(k string) (string, bool) { v, ok := env[k]; return v, ok })

	assert.Equal(t, "/srv/lake", cfg.DataHome)
	assert.Equal(t, "jdbc:postgresql://db:5432/climate", cfg.Database.URL)
	assert.Equal(t, "loader", cfg.Database.User)
	assert.Equal(t, "s3cret", cfg.Database.Password)
	assert.Equal(t, "AKIA", cfg.AWS.AccessKeyID)
	assert.Equal(t, 4, cfg.Workers)
}

func TestResolveSecrets(t *testing.T) {
	store := &secret.EnvStore{Lookup: func(string) (string, bool) { return "", false }}
	require.NoError(t, store.Set(secret.KeyDBPassword, []byte("from-store")))
	require.NoError(t, store.Set(secret.KeyAWSSecretAccessKey, []byte("aws-from-store")))

	cfg := config.Default()
	cfg.AWS.SecretAccessKey = "explicit"
	require.NoError(t, cfg.ResolveSecrets(store))
	assert.Equal(t, "from-store", cfg.Database.Password)
	assert.Equal(t, "explicit", cfg.AWS.SecretAccessKey)
}

func TestOutputPath(t *testing.T) {
	day := time.Date(2024, time.March, 7, 6, 0, 0, 0, time.UTC)
	assert.Equal(t, "/data/co2_weekly_mlo/y=2024/m=03/d=07", config.OutputPath("/data", "co2_weekly_mlo", day))
	assert.Equal(t, "s3://lake/ch4_mm_gl/y=2024/m=03/d=07", config.OutputPath("s3://lake/", "ch4_mm_gl", day))
}
