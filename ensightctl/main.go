package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/docopt/docopt-go"

	"github.com/ansys/pyensight-sub000/ensight"
	"github.com/ansys/pyensight-sub000/ensim"
	"github.com/ansys/pyensight-sub000/protocol"
)

const EnsightCtlVersion = "0.0.1"

const DefaultEngineUrl = "ws://127.0.0.1:8087"
const DefaultListenAddr = ":8087"
const DefaultTick = 5 * time.Second

var Out *log.Logger
var Err *log.Logger

func init() {
	Out = log.New(os.Stdout, "", 0)
	Err = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lshortfile)
}

func main() {
	usage := fmt.Sprintf(
		`EnSight engine control.

The default engine url is:
    engine_url: %s

Usage:
    ensightctl cmd [--url=<url>] [--strict] <line>...
    ensightctl get [--url=<url>] <class> <id> <attr>
    ensightctl set [--url=<url>] <class> <id> <attr> <values>...
    ensightctl version [--url=<url>]
    ensightctl watch [--url=<url>] [--class=<class>] [--attrs=<attrs>] [--count=<n>]
    ensightctl sim [--listen=<addr>] [--tick=<tick>]

Options:
    -h --help          Show this screen.
    --version          Show version.
    --url=<url>        Engine websocket url.
    --strict           Escalate engine rejections to errors.
    --class=<class>    Watch a single class noun.
    --attrs=<attrs>    Watch only these attributes (comma separated).
    --count=<n>        Exit after n events.
    --listen=<addr>    Simulator listen address [default: %s].
    --tick=<tick>      Simulator clock tick, 0 to disable [default: %s].`,
		DefaultEngineUrl,
		DefaultListenAddr,
		DefaultTick,
	)

	opts, err := docopt.ParseArgs(usage, os.Args[1:], EnsightCtlVersion)
	if err != nil {
		panic(err)
	}

	if cmd_, _ := opts.Bool("cmd"); cmd_ {
		cmd(opts)
	} else if get_, _ := opts.Bool("get"); get_ {
		get(opts)
	} else if set_, _ := opts.Bool("set"); set_ {
		set(opts)
	} else if version_, _ := opts.Bool("version"); version_ {
		version(opts)
	} else if watch_, _ := opts.Bool("watch"); watch_ {
		watch(opts)
	} else if sim_, _ := opts.Bool("sim"); sim_ {
		sim(opts)
	}
}

func engineUrl(opts docopt.Opts) string {
	if urlAny := opts["--url"]; urlAny != nil {
		return urlAny.(string)
	}
	return DefaultEngineUrl
}

func openSession(ctx context.Context, opts docopt.Opts) *ensight.Session {
	settings := ensight.DefaultSessionSettings()
	settings.Client = fmt.Sprintf("ensightctl %s", EnsightCtlVersion)
	if strict_, _ := opts.Bool("--strict"); strict_ {
		settings.StrictErrors = true
	}

	session, err := ensight.Connect(ctx, engineUrl(opts), settings)
	if err != nil {
		Err.Fatalf("connect: %s", err)
	}
	return session
}

// journal argument grammar: ON/OFF booleans, numbers, anything else verbatim
func parseArg(raw string) any {
	switch strings.ToUpper(raw) {
	case "ON", "TRUE":
		return true
	case "OFF", "FALSE":
		return false
	}
	if num, err := strconv.ParseFloat(raw, 64); err == nil {
		return num
	}
	return raw
}

// send one journal line, "class: command args"
func cmd(opts docopt.Opts) {
	rawLine, _ := opts["<line>"].([]string)
	line := strings.Join(rawLine, " ")

	colon := strings.Index(line, ":")
	if colon < 0 {
		Err.Fatalf("expected \"class: command args\", got %q", line)
	}
	class := strings.TrimSpace(line[:colon])
	fields := strings.Fields(line[colon+1:])
	if len(fields) == 0 {
		Err.Fatalf("expected a command after %q", class+":")
	}
	args := make([]any, len(fields)-1)
	for i, field := range fields[1:] {
		args[i] = parseArg(field)
	}

	cancelCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session := openSession(cancelCtx, opts)
	defer session.Close()

	status, err := session.Command(cancelCtx, class, fields[0], args...)
	if err != nil {
		Err.Fatalf("%s", err)
	}
	if status == 0 {
		Out.Printf("ok")
	} else {
		Out.Printf("status %d: %s", status, session.LastMessage())
	}
}

// read one attribute
func get(opts docopt.Opts) {
	class, _ := opts.String("<class>")
	idStr, _ := opts.String("<id>")
	attr, _ := opts.String("<attr>")

	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		Err.Fatalf("bad object id %q", idStr)
	}

	cancelCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session := openSession(cancelCtx, opts)
	defer session.Close()

	proxy := session.Objects().Resolve(ensight.ClassForNoun(class), ensight.ObjectId(id))
	value, err := proxy.GetAttr(cancelCtx, ensight.AttrName(attr))
	if err != nil {
		Err.Fatalf("%s", err)
	}
	Out.Printf("%v", value)
}

// assign one attribute
func set(opts docopt.Opts) {
	class, _ := opts.String("<class>")
	idStr, _ := opts.String("<id>")
	attr, _ := opts.String("<attr>")
	rawValues, _ := opts["<values>"].([]string)

	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		Err.Fatalf("bad object id %q", idStr)
	}

	var value any
	if len(rawValues) == 1 {
		value = parseArg(rawValues[0])
	} else {
		values := make([]any, len(rawValues))
		for i, raw := range rawValues {
			values[i] = parseArg(raw)
		}
		value = values
	}

	cancelCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session := openSession(cancelCtx, opts)
	defer session.Close()

	proxy := session.Objects().Resolve(ensight.ClassForNoun(class), ensight.ObjectId(id))
	if err := proxy.SetAttr(cancelCtx, ensight.AttrName(attr), value); err != nil {
		Err.Fatalf("%s", err)
	}
	Out.Printf("ok")
}

// print the engine version
func version(opts docopt.Opts) {
	cancelCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session := openSession(cancelCtx, opts)
	defer session.Close()

	Out.Printf("engine %s", session.EngineVersion())
	if next, err := session.NextObjectId(cancelCtx); err == nil {
		Out.Printf("next object id %d", next)
	}
}

// print engine events until interrupted
func watch(opts docopt.Opts) {
	cancelCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session := openSession(cancelCtx, opts)
	defer session.Close()

	failed := make(chan error, 1)
	session.AddFailureCallback(func(failErr error) {
		select {
		case failed <- failErr:
		default:
		}
	})

	classes := []string{
		ensight.ClassGlobals,
		ensight.ClassPart,
		ensight.ClassAnnot,
		ensight.ClassVariable,
		ensight.ClassTool,
	}
	if classAny := opts["--class"]; classAny != nil {
		classes = []string{ensight.ClassForNoun(classAny.(string))}
	}

	var attrs []ensight.AttrKey
	if attrsAny := opts["--attrs"]; attrsAny != nil {
		for _, name := range strings.Split(attrsAny.(string), ",") {
			if name = strings.TrimSpace(name); name != "" {
				attrs = append(attrs, ensight.AttrName(name))
			}
		}
	}

	count := 0
	if countAny := opts["--count"]; countAny != nil {
		count, _ = opts.Int("--count")
	}

	pretty := term.IsTerminal(int(os.Stdout.Fd()))
	done := make(chan struct{})
	remaining := count

	// dispatch is a single goroutine, so the countdown needs no lock
	callback := func(event *ensight.Event) {
		kind := eventKindName(event.Kind)
		if event.Kind == protocol.EventKindAttrChanged {
			if pretty {
				Out.Printf("%-8s %-16s %s = %v", kind, event.Object, event.Attr.Name, event.Values)
			} else {
				Out.Printf("%s %s %s %v", kind, event.Object, event.Attr.Name, event.Values)
			}
		} else {
			if pretty {
				Out.Printf("%-8s %-16s", kind, event.Object)
			} else {
				Out.Printf("%s %s", kind, event.Object)
			}
		}
		if 0 < count {
			remaining -= 1
			if remaining == 0 {
				close(done)
			}
		}
	}

	for _, class := range classes {
		if _, err := session.SubscribeClass(cancelCtx, class, attrs, callback); err != nil {
			Err.Fatalf("subscribe %s: %s", class, err)
		}
	}
	Out.Printf("watching %s", strings.Join(classes, " "))

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	select {
	case <-c:
	case <-done:
	case failErr := <-failed:
		Err.Fatalf("%s", failErr)
	}
}

func eventKindName(kind protocol.EventKind) string {
	switch kind {
	case protocol.EventKindAttrChanged:
		return "attr"
	case protocol.EventKindObjectCreated:
		return "created"
	case protocol.EventKindObjectDeleted:
		return "deleted"
	default:
		return fmt.Sprintf("kind(%d)", kind)
	}
}

// run the engine simulator
func sim(opts docopt.Opts) {
	listenAddr, _ := opts.String("--listen")

	tick := DefaultTick
	if tickAny := opts["--tick"]; tickAny != nil {
		parsed, err := time.ParseDuration(tickAny.(string))
		if err != nil {
			Err.Fatalf("bad tick %q", tickAny)
		}
		tick = parsed
	}

	cancelCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine := ensim.NewEngineWithDefaults()
	seedScene(engine)

	if 0 < tick {
		go func() {
			for {
				select {
				case <-cancelCtx.Done():
					return
				case <-time.After(tick):
					engine.AdvanceTime()
				}
			}
		}()
	}

	server := ensim.NewServerWithDefaults(cancelCtx, engine)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		server.Close()
		cancel()
	}()

	Out.Printf("engine simulator on %s", listenAddr)
	if err := server.ListenAndServe(listenAddr); err != nil {
		Err.Fatalf("serve: %s", err)
	}
}

func seedScene(engine *ensim.Engine) {
	engine.AddObject("part", "engine block")
	engine.AddObject("part", "impeller")
	engine.AddObject("part", "intake manifold")
	engine.AddObject("annot", "title")
	engine.AddObject("variable", "pressure")
	engine.AddObject("variable", "velocity")
}
