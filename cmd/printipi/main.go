// printipi is a 3D printer motion-control host for single-board
// computers. It reads G-code from a file, stdin, or a serial port,
// plans each move into precisely timed step pulses, and emits them on
// GPIO while closing the temperature loops on spare cycles.
//
// Usage:
//
//	printipi -config printer.cfg [options]
//
// Options:
//
//	-config string  Printer configuration file (required)
//	-gcode string   G-code file to run as the root command stream
//	-serial string  Serial device for the host link (e.g. /dev/ttyAMA0)
//	-baud int       Serial baud rate (default 115200)
//	-emulate        Record pin activity instead of driving GPIO
//
// Without -gcode or -serial, commands are read from stdin and replies
// written to stdout.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/matthewSorensen/printipi/pkg/clock"
	"github.com/matthewSorensen/printipi/pkg/config"
	"github.com/matthewSorensen/printipi/pkg/gcode"
	"github.com/matthewSorensen/printipi/pkg/log"
	"github.com/matthewSorensen/printipi/pkg/safety"
	"github.com/matthewSorensen/printipi/pkg/state"
)

func main() {
	configFile := flag.String("config", "", "Printer configuration file (required)")
	gcodeFile := flag.String("gcode", "", "G-code file to run as the root command stream")
	serialDev := flag.String("serial", "", "Serial device for the host link")
	baud := flag.Int("baud", 115200, "Serial baud rate")
	emulate := flag.Bool("emulate", false, "Record pin activity instead of driving GPIO")
	flag.Parse()

	logger := log.GetLogger("main")

	if *configFile == "" {
		fmt.Fprintln(os.Stderr, "Error: -config is required")
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}
	machine, err := config.LoadMachine(cfg)
	if err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}

	clk := clock.NewMonotonic()
	safetyMgr := safety.New()

	rig, err := assemble(clk, machine, safetyMgr, *emulate)
	if err != nil {
		logger.Error("bringing up hardware: %v", err)
		os.Exit(1)
	}

	var root gcode.Source
	switch {
	case *serialDev != "":
		root, err = gcode.OpenSerial(*serialDev, *baud)
	case *gcodeFile != "":
		root, err = gcode.OpenFile(*gcodeFile)
	default:
		root = gcode.Stdio()
	}
	if err != nil {
		logger.Error("opening command source: %v", err)
		safetyMgr.Shutdown(safety.ReasonFirmwareError)
		os.Exit(1)
	}

	st := state.New(clk, rig.scheduler, rig.planner, rig.drivers, rig.steppers,
		rig.endstops, safetyMgr, machine, root)
	rig.planner.SetHasHomed(st.HasHomed)

	// Signals take the same safe-shutdown path as M112.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Warn("signal received, shutting down")
		safetyMgr.Shutdown(safety.ReasonSignal)
	}()

	logger.Info("printipi starting: %s kinematics, %d drivers", machine.Kinematics, len(rig.drivers))
	rig.scheduler.Run()
	reason := st.Run()

	rig.scheduler.Stop()
	safetyMgr.Shutdown(reason)
	os.Exit(safetyMgr.Reason().ExitCode())
}
