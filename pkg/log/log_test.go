package log

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestLogger(t *testing.T, name string) (*Logger, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	SetOutput(buf)
	return ForService(name), buf
}

func TestPrefixInfo(t *testing.T) {
	SetGlobalDebug(false)

	const name = "prefix_service_test"
	l, buf := newTestLogger(t, name)

	l.Infof("hello world")
	out := buf.String()
	assert.Contains(t, out, "INFO ["+name+">]")
	assert.Contains(t, out, "hello world")
}

func TestDebugPerService(t *testing.T) {
	SetGlobalDebug(false)

	const name = "debug_service_specific"
	DisableDebugFor(name)
	l, buf := newTestLogger(t, name)

	l.Debugf("should not appear")
	assert.NotContains(t, buf.String(), "should not appear")

	EnableDebugFor(name)
	defer DisableDebugFor(name)
	l.Debugf("visible now")
	assert.Contains(t, buf.String(), "visible now")
}

func TestDebugGlobal(t *testing.T) {
	const name = "debug_service_global"
	DisableDebugFor(name)
	l, buf := newTestLogger(t, name)

	SetGlobalDebug(false)
	l.Debugf("hidden")
	assert.NotContains(t, buf.String(), "hidden")

	SetGlobalDebug(true)
	defer SetGlobalDebug(false)
	l.Debugf("global visible")
	assert.Contains(t, buf.String(), "global visible")
}

func TestQuietDropsInfoOnly(t *testing.T) {
	l, buf := newTestLogger(t, "quiet_service_test")

	SetQuiet(true)
	defer SetQuiet(false)

	l.Infof("chatty")
	l.Warnf("careful")
	l.Errorf("broken")

	out := buf.String()
	assert.NotContains(t, out, "chatty")
	assert.Contains(t, out, "WARN [quiet_service_test>] careful")
	assert.Contains(t, out, "ERROR [quiet_service_test>] broken")
}
