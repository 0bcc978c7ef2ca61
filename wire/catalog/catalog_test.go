package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleCatalog = `<?xml version="1.0"?>
<namespace name="">
  <namespace name="SERVER">
    <event name="PING" id="0x0001">
      <args>
        <arg name="server_name" type="str" id="0x01"/>
      </args>
      <return type="bool"/>
    </event>
  </namespace>
  <namespace name="PLAYERS">
    <event name="LIST" id="0x0010">
      <args>
        <arg name="server_name" type="str" id="0x01"/>
      </args>
      <return type="list[str]"/>
    </event>
  </namespace>
</namespace>`

func TestLoadBuildsDottedNames(t *testing.T) {
	cat, err := Load([]byte(sampleCatalog))
	require.NoError(t, err)
	require.Equal(t, 2, cat.Len())

	ping, err := cat.LookupByName("SERVER.PING")
	require.NoError(t, err)
	require.Equal(t, uint32(1), ping.ID)
	require.Equal(t, "bool", ping.ReturnType)

	byID, err := cat.LookupByID(1)
	require.NoError(t, err)
	require.Same(t, ping, byID)
}

func TestLookupByIDSynthesizesResponseEvent(t *testing.T) {
	cat, err := Load([]byte(sampleCatalog))
	require.NoError(t, err)

	resp, err := cat.LookupByID(1 | 0x10000)
	require.NoError(t, err)
	require.Equal(t, "SERVER.PING.RETURN", resp.Name)
	require.Equal(t, "None", resp.ReturnType)
	require.Len(t, resp.Args, 1)
	require.Equal(t, "result", resp.Args[0].Name)
	require.Equal(t, "bool", resp.Args[0].Type)
}

func TestReturnEventRejectsEventsWithoutAReturnType(t *testing.T) {
	cat, err := Load([]byte(`<namespace name="">
    <event name="STARTED" id="0x01">
      <args/>
    </event>
  </namespace>`))
	require.NoError(t, err)
	started, err := cat.LookupByName("STARTED")
	require.NoError(t, err)
	_, err = started.ReturnEvent()
	require.Error(t, err)
}

func TestLoadRejectsDuplicateID(t *testing.T) {
	_, err := Load([]byte(`<namespace name="">
    <event name="A" id="0x01"><args/></event>
    <event name="B" id="0x01"><args/></event>
  </namespace>`))
	require.Error(t, err)
}

func TestLoadRejectsDuplicateArgID(t *testing.T) {
	_, err := Load([]byte(`<namespace name="">
    <event name="A" id="0x01">
      <args>
        <arg name="x" type="int" id="0x01"/>
        <arg name="y" type="int" id="0x01"/>
      </args>
    </event>
  </namespace>`))
	require.Error(t, err)
}

func TestLoadRejectsUnsupportedType(t *testing.T) {
	_, err := Load([]byte(`<namespace name="">
    <event name="A" id="0x01">
      <args><arg name="x" type="frobnicator" id="0x01"/></args>
    </event>
  </namespace>`))
	require.Error(t, err)
}

func TestLoadRejectsIDZero(t *testing.T) {
	_, err := Load([]byte(`<namespace name=""><event name="A" id="0x00"><args/></event></namespace>`))
	require.Error(t, err)
}

func TestIsSupportedTypeRecognizesComposites(t *testing.T) {
	require.True(t, IsSupportedType("list[int]"))
	require.True(t, IsSupportedType("tuple[str, int]"))
	require.True(t, IsSupportedType("dict[str, list[int]]"))
	require.False(t, IsSupportedType("dict[str]"))
	require.False(t, IsSupportedType("set[int]"))
}
