// Command wasmscope is a thin non-interactive driver for the engine: it
// decodes and dumps modules, and runs an exported function under the
// debugger, printing a backtrace at every suspension.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"nikand.dev/go/cli"

	"github.com/wasmscope/wasmscope/debug"
	"github.com/wasmscope/wasmscope/engine"
	"github.com/wasmscope/wasmscope/wasm/binary"
)

var log *zap.Logger

func main() {
	dump := &cli.Command{
		Name:        "dump",
		Description: "decode a module and print its sections",
		Args:        cli.Args{},
		Action:      dumpRun,
	}

	run := &cli.Command{
		Name:        "run",
		Description: "run an exported function under the debugger",
		Args:        cli.Args{},
		Flags: []*cli.Flag{
			cli.NewFlag("invoke", "main", "exported function to call"),
			cli.NewFlag("break", "", "breakpoints as func:offset, comma separated"),
		},
		Action: runRun,
	}

	app := &cli.Command{
		Name:        "wasmscope",
		Description: "WebAssembly debugger engine",
		Before:      before,
		Flags: []*cli.Flag{
			cli.NewFlag("log", "", "log engine activity at the given level (debug, info)"),
			cli.FlagfileFlag,
			cli.HelpFlag,
		},
		Commands: []*cli.Command{
			dump,
			run,
		},
	}

	cli.RunAndExit(app, os.Args, os.Environ())
}

func before(c *cli.Command) error {
	level := c.String("log")
	if level == "" {
		log = zap.NewNop()
		return nil
	}
	cfg := zap.NewDevelopmentConfig()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("log level %q: %w", level, err)
	}
	var err error
	log, err = cfg.Build()
	return err
}

func dumpRun(c *cli.Command) error {
	for _, a := range c.Args {
		data, err := os.ReadFile(a)
		if err != nil {
			return err
		}
		m, err := binary.DecodeModule(data)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %d types, %d imports, %d functions, %d exports\n",
			a, len(m.TypeSection), len(m.ImportSection), len(m.FunctionSection), len(m.ExportSection))
		for i, t := range m.TypeSection {
			fmt.Printf("  type[%d] %s\n", i, t)
		}
		for _, imp := range m.ImportSection {
			fmt.Printf("  import %s.%s (%s)\n", imp.Module, imp.Name, imp.Kind)
		}
		for i := range m.FunctionSection {
			index := m.ImportFunctionCount() + uint32(i)
			name := m.FunctionName(index)
			if name == "" {
				name = fmt.Sprintf("func[%d]", index)
			}
			fmt.Printf("  function %s: %d bytes of code\n", name, len(m.CodeSection[i].Body))
		}
		for _, exp := range m.ExportSection {
			fmt.Printf("  export %q (%s) -> %d\n", exp.Name, exp.Kind, exp.Index)
		}
	}
	return nil
}

func runRun(c *cli.Command) error {
	if len(c.Args) == 0 {
		return fmt.Errorf("usage: run <module.wasm> [args...]")
	}
	data, err := os.ReadFile(c.Args[0])
	if err != nil {
		return err
	}
	args := make([]uint64, 0, len(c.Args)-1)
	for _, a := range c.Args[1:] {
		v, err := strconv.ParseInt(a, 0, 64)
		if err != nil {
			return fmt.Errorf("argument %q: %w", a, err)
		}
		args = append(args, uint64(v))
	}

	ctx := context.Background()
	s, err := debug.Load(ctx, data, engine.NewImports(), debug.WithLogger(log))
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Start(c.String("invoke"), args...); err != nil {
		return err
	}
	if err := setBreakpoints(s, c.String("break")); err != nil {
		return err
	}

	for {
		state, err := s.Continue(ctx)
		switch state {
		case debug.StateSuspended:
			fmt.Printf("suspended: %s\n", s.Stopped().Reason)
			printBacktrace(s)
		case debug.StateTerminated:
			results, err := s.Results()
			if err != nil {
				return err
			}
			fn, _ := s.Instance().ExportedFunction(c.String("invoke"))
			for i, r := range results {
				fmt.Println(debug.Value{Type: fn.Type.Results[i], Raw: r})
			}
			return nil
		case debug.StateTrapped:
			fmt.Printf("trapped: %v\n", s.Cause())
			printBacktrace(s)
			return err
		default:
			return err
		}
	}
}

func setBreakpoints(s *debug.Session, spec string) error {
	if spec == "" {
		return nil
	}
	for _, part := range strings.Split(spec, ",") {
		fn, offset, ok := strings.Cut(part, ":")
		if !ok {
			return fmt.Errorf("breakpoint %q: want func:offset", part)
		}
		f, err := strconv.ParseUint(fn, 0, 32)
		if err != nil {
			return fmt.Errorf("breakpoint %q: %w", part, err)
		}
		o, err := strconv.ParseUint(offset, 0, 64)
		if err != nil {
			return fmt.Errorf("breakpoint %q: %w", part, err)
		}
		if _, err := s.SetBreakpoint(uint32(f), o); err != nil {
			return err
		}
	}
	return nil
}

func printBacktrace(s *debug.Session) {
	frames, err := s.Backtrace()
	if err != nil {
		return
	}
	for _, f := range frames {
		fmt.Println("  " + f.String())
	}
}
