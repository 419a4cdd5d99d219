package kernelcore

import (
	"testing"
	"unsafe"

	"github.com/notargets/kerneldispatch/backend/host"
	"github.com/notargets/kerneldispatch/kernelspec"
	"github.com/notargets/kerneldispatch/kerneltest"
)

func buildEcho(t *testing.T) *Spec {
	t.Helper()
	entry := host.Entry(func(frame *host.CallFrame) error {
		a, err := frame.Uint32("a")
		if err != nil {
			return err
		}
		out, err := frame.Bytes("out")
		if err != nil {
			return err
		}
		copy(out, unsafe.Slice((*byte)(unsafe.Pointer(&a)), 4))
		return nil
	})
	spec, err := NewBuilder("echo").
		AddParameter("a", "r", "u32", false).
		AddParameter("out", "w", "u32[1]", true).
		SetEntry(kernelspec.EntryRef{Name: "echo", Native: entry}, 0).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return spec
}

func TestNewRuntimeDefaultsToHostBackend(t *testing.T) {
	rt, err := NewRuntime(Config{})
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	if rt.Context().Backend() != host.BackendName {
		t.Fatalf("Backend() = %q, want %q", rt.Context().Backend(), host.BackendName)
	}
}

func TestRuntimeLaunchRunsToCompletionOnHost(t *testing.T) {
	rt, err := NewRuntime(Config{Backend: "host"})
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	spec := buildEcho(t)
	reg := kerneltest.NewRegistry()

	out := rt.Context().Alloc(reg.MustResolve("u32"), 1)
	defer out.Release()

	args := []Handler{
		kerneltest.Uint32(reg, 42),
		kerneltest.DeviceHandle(reg, "u32", out),
	}
	ev, err := rt.Launch("echo", spec, args, nil, nil)
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if err := ev.Await(); err != nil {
		t.Fatalf("Await: %v", err)
	}
}
