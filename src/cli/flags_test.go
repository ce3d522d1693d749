package cli

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestByteSize(t *testing.T) {
	opts := struct {
		Size ByteSize `short:"b"`
	}{}
	_, extraArgs, err := ParseFlags("test", &opts, []string{"test", "-b=15M"})
	assert.NoError(t, err)
	assert.Equal(t, 0, len(extraArgs))
	assert.EqualValues(t, 15000000, opts.Size)
	assert.Equal(t, "15 MB", opts.Size.String())
}

func TestDuration(t *testing.T) {
	opts := struct {
		D Duration `short:"d"`
	}{}
	_, extraArgs, err := ParseFlags("test", &opts, []string{"test", "-d=3h"})
	assert.NoError(t, err)
	assert.Equal(t, 0, len(extraArgs))
	assert.EqualValues(t, 3*time.Hour, opts.D)
}

func TestURL(t *testing.T) {
	opts := struct {
		U URL `short:"u"`
	}{}
	_, extraArgs, err := ParseFlags("test", &opts, []string{"test", "-u=https://localhost:9091"})
	assert.NoError(t, err)
	assert.Equal(t, 0, len(extraArgs))
	assert.EqualValues(t, "https://localhost:9091", opts.U)

	_, _, err = ParseFlags("test", &opts, []string{"test", "-u=localhost:9091"})
	assert.Error(t, err)
	_, _, err = ParseFlags("test", &opts, []string{"test", "-u=http://"})
	assert.Error(t, err)
}

func TestColourMode(t *testing.T) {
	opts := struct {
		C ColourMode `short:"c" default:"auto"`
	}{}
	_, _, err := ParseFlags("test", &opts, []string{"test"})
	assert.NoError(t, err)
	assert.Equal(t, ColourAuto, opts.C)

	_, _, err = ParseFlags("test", &opts, []string{"test", "-c=ALWAYS"})
	assert.NoError(t, err)
	assert.Equal(t, ColourAlways, opts.C)
	assert.True(t, opts.C.Enabled())

	_, _, err = ParseFlags("test", &opts, []string{"test", "-c=never"})
	assert.NoError(t, err)
	assert.False(t, opts.C.Enabled())

	_, _, err = ParseFlags("test", &opts, []string{"test", "-c=sometimes"})
	assert.Error(t, err)
}

func TestFilepaths(t *testing.T) {
	opts := struct {
		Args struct {
			Files Filepaths `positional-arg-name:"files"`
		} `positional-args:"true"`
	}{}
	_, _, err := ParseFlags("test", &opts, []string{"test", "a.jsonl", "b.jsonl"})
	assert.NoError(t, err)
	assert.Equal(t, []string{"a.jsonl", "b.jsonl"}, opts.Args.Files.AsStrings())
}
