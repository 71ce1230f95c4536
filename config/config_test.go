package config

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigValidates(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*Config)
		want string
	}{
		{
			"no default resource",
			func(c *Config) { c.DefaultResource = "" },
			"DefaultResource is required",
		},
		{
			"unconfigured default resource",
			func(c *Config) { c.DefaultResource = "cluster" },
			"not configured",
		},
		{
			"unknown backend",
			func(c *Config) {
				r := c.Resources["local"]
				r.Backend = "mesos"
				c.Resources["local"] = r
			},
			"unknown backend",
		},
		{
			"missing work dir",
			func(c *Config) {
				r := c.Resources["local"]
				r.WorkDir = ""
				c.Resources["local"] = r
			},
			"no WorkDir",
		},
		{
			"unknown database",
			func(c *Config) { c.Database = "oracle" },
			"unknown database",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mod(&c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %v does not mention %q", err, tt.want)
			}
		})
	}
}

func TestParse(t *testing.T) {
	raw := `
Database: inmem
DefaultResource: cluster
Resources:
  cluster:
    Backend: slurm
    WorkDir: /shared/somaflow
    StorageRoot: /shared/somaflow/storage
    MaxInFlight: 200
    Paths:
      genomes: /shared/genomes
Scheduler:
  TickRate: 250ms
Monitor:
  PollRate: 10s
  KillTimeout: 5m
`
	conf := DefaultConfig()
	if err := Parse([]byte(raw), &conf); err != nil {
		t.Fatal(err)
	}
	if err := conf.Validate(); err != nil {
		t.Fatal(err)
	}

	res, ok := conf.Resources["cluster"]
	if !ok {
		t.Fatal("cluster resource missing")
	}
	if res.Backend != "slurm" || res.MaxInFlight != 200 {
		t.Errorf("unexpected resource: %+v", res)
	}
	if res.Paths["genomes"] != "/shared/genomes" {
		t.Errorf("unexpected paths: %v", res.Paths)
	}
	if time.Duration(conf.Scheduler.TickRate) != 250*time.Millisecond {
		t.Errorf("tick rate: %s", &conf.Scheduler.TickRate)
	}
	if time.Duration(conf.Monitor.KillTimeout) != 5*time.Minute {
		t.Errorf("kill timeout: %s", &conf.Monitor.KillTimeout)
	}
	// Untouched fields keep their defaults.
	if conf.Monitor.MaxStatusFailures != 5 {
		t.Errorf("max status failures: %d", conf.Monitor.MaxStatusFailures)
	}
}

func TestYamlRoundTrip(t *testing.T) {
	c := DefaultConfig()
	c.Monitor.PollRate = Duration(time.Second * 42)

	b, err := ToYaml(c)
	if err != nil {
		t.Fatal(err)
	}

	var parsed Config
	if err := Parse(b, &parsed); err != nil {
		t.Fatal(err)
	}
	if time.Duration(parsed.Monitor.PollRate) != time.Second*42 {
		t.Errorf("poll rate lost in round trip: %s", &parsed.Monitor.PollRate)
	}
	if parsed.DefaultResource != c.DefaultResource {
		t.Errorf("default resource lost in round trip: %q", parsed.DefaultResource)
	}
}

func TestDurationSet(t *testing.T) {
	var d Duration
	if err := d.Set("1h30m"); err != nil {
		t.Fatal(err)
	}
	if time.Duration(d) != 90*time.Minute {
		t.Errorf("duration: %s", &d)
	}
	if err := d.Set("bogus"); err == nil {
		t.Error("expected parse error")
	}
}
