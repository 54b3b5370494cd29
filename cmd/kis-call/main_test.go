package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/kistrade/kis/client"
)

func TestParamFlags(t *testing.T) {
	p := paramFlags{}
	require.NoError(t, p.Set("FID_INPUT_ISCD=005930"))
	require.NoError(t, p.Set("CTX_AREA_FK100="))
	assert.Equal(t, "005930", p["FID_INPUT_ISCD"])
	v, ok := p["CTX_AREA_FK100"]
	assert.True(t, ok)
	assert.Empty(t, v)

	assert.Error(t, p.Set("novalue"))
	assert.Error(t, p.Set("=x"))
}

func TestReadBody(t *testing.T) {
	b, err := readBody("")
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(b))

	b, err = readBody(`{"PDNO":"005930"}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"PDNO":"005930"}`, string(b))

	path := filepath.Join(t.TempDir(), "order.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"ORD_QTY":"1"}`), 0o600))
	b, err = readBody("@" + path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ORD_QTY":"1"}`, string(b))

	_, err = readBody("{broken")
	assert.Error(t, err)
}

func TestReportExitCodes(t *testing.T) {
	assert.Equal(t, exitOK, report(nil))
	assert.Equal(t, exitBusiness, report(&client.BusinessError{RtCd: "1"}))
	assert.Equal(t, exitAuthExpired, report(&client.AuthExpiredError{MsgCd: "EGW00123"}))
	assert.Equal(t, exitAuthFailed, report(pkgerrors.Wrap(&client.AuthFailedError{StatusCode: 403}, "issue")))
	assert.Equal(t, exitTransport, report(&client.TransportError{StatusCode: 500}))
	assert.Equal(t, exitUsage, report(errors.New("other")))
}
