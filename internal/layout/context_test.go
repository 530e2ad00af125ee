package layout

import (
	"reflect"
	"testing"
)

func TestHandlersBaseTable(t *testing.T) {
	base := Handlers()
	entry, ok := base["Resize"]
	if !ok {
		t.Fatal("base table missing Resize")
	}
	if entry.SelectInputs == nil || entry.Transform == nil {
		t.Error("Resize entry incomplete")
	}
	if len(base) != 1 {
		t.Errorf("base table has %d entries, want 1", len(base))
	}
}

func TestExtendedHandlersContainBase(t *testing.T) {
	base := Handlers()
	ext := ExtendedHandlers()

	for op := range base {
		if _, ok := ext[op]; !ok {
			t.Errorf("extended table missing base entry %q", op)
		}
	}

	for _, op := range []string{
		"MaxPool",
		"com.microsoft.QLinearAdd",
		"com.microsoft.QLinearAveragePool",
		"com.microsoft.QLinearConcat",
		"com.microsoft.QLinearGlobalAveragePool",
		"com.microsoft.QLinearLeakyRelu",
		"com.microsoft.QLinearMul",
		"com.microsoft.QLinearReduceMean",
		"com.microsoft.QLinearSigmoid",
	} {
		if _, ok := ext[op]; !ok {
			t.Errorf("extended table missing %q", op)
		}
	}
}

func TestExtendedHandlersShareBaseEntries(t *testing.T) {
	// Entries present only in the base table are carried over unchanged.
	baseFn := reflect.ValueOf(Handlers()["Resize"].Transform).Pointer()
	extFn := reflect.ValueOf(ExtendedHandlers()["Resize"].Transform).Pointer()
	if baseFn != extFn {
		t.Error("extended Resize transform differs from base")
	}
}

func TestHandlerTablesAreStable(t *testing.T) {
	if got, want := reflect.ValueOf(Handlers()), reflect.ValueOf(Handlers()); got.Pointer() != want.Pointer() {
		t.Error("Handlers rebuilt between calls")
	}
	if got, want := reflect.ValueOf(ExtendedHandlers()), reflect.ValueOf(ExtendedHandlers()); got.Pointer() != want.Pointer() {
		t.Error("ExtendedHandlers rebuilt between calls")
	}
}

func TestLayoutSensitiveResizeBackends(t *testing.T) {
	deny := LayoutSensitiveResizeBackends()
	for _, provider := range []string{"WebGPUExecutionProvider", "InternalTestingExecutionProvider"} {
		if !deny[provider] {
			t.Errorf("%s not in deny set", provider)
		}
	}
	if deny["CPUExecutionProvider"] {
		t.Error("CPUExecutionProvider must not be in deny set")
	}
}
