package klog

import "bytes"
import "testing"

import "github.com/op/go-logging"
import "github.com/stretchr/testify/assert"

func TestSetup(t *testing.T) {
	var buf bytes.Buffer
	assert.NoError(t, Setup(&buf, "info"))
	log := logging.MustGetLogger("test")
	log.Debugf("hidden")
	log.Infof("boot %d", 1)
	assert.Contains(t, buf.String(), "test I > boot 1")
	assert.NotContains(t, buf.String(), "hidden")

	assert.Error(t, Setup(&buf, "loud"))
}

func TestQuiet(t *testing.T) {
	var buf bytes.Buffer
	Quiet(&buf)
	log := logging.MustGetLogger("test")
	log.Warningf("w")
	log.Errorf("e")
	assert.NotContains(t, buf.String(), "W >")
	assert.Contains(t, buf.String(), "E > e")
}
