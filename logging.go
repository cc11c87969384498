package tcpreactor

import (
	"fmt"
	"io"
	"os"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/logiface/stumpy"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the seam every engine component logs diagnostics through,
// following the teacher's package-level Logger interface pattern: internal
// code depends only on this small contract, so the backing implementation
// can be swapped for any structured-logging framework without touching the
// reactor, acceptor, or connection code.
type Logger interface {
	Errorf(format string, args ...any)
	Warnf(format string, args ...any)
	Infof(format string, args ...any)
	// Fatalf logs then terminates the process, for invariant violations and
	// configuration errors per spec.md §7 ("Fatal log then abort").
	Fatalf(format string, args ...any)
}

// logifaceLogger adapts the engine's Logger seam onto a logiface.Logger,
// the teacher module's direct (but, in the teacher, test-only) structured
// logging dependency, here promoted to the production default.
type logifaceLogger struct {
	l *logiface.Logger[*stumpy.Event]
}

// NewLogifaceLogger builds the default structured logger, writing
// newline-delimited JSON records to w via the bundled stumpy encoder.
func NewLogifaceLogger(w io.Writer) Logger {
	return &logifaceLogger{
		l: stumpy.L.New(stumpy.L.WithStumpy(stumpy.WithWriter(w))),
	}
}

func (g *logifaceLogger) Errorf(format string, args ...any) {
	g.l.Err().Log(fmt.Sprintf(format, args...))
}

func (g *logifaceLogger) Warnf(format string, args ...any) {
	g.l.Warning().Log(fmt.Sprintf(format, args...))
}

func (g *logifaceLogger) Infof(format string, args ...any) {
	g.l.Info().Log(fmt.Sprintf(format, args...))
}

func (g *logifaceLogger) Fatalf(format string, args ...any) {
	g.l.Crit().Log(fmt.Sprintf(format, args...))
	os.Exit(1)
}

// defaultLogger is used by any EventLoop/TcpServer/TcpClient that is not
// given an explicit Logger.
var defaultLogger Logger = NewLogifaceLogger(os.Stderr)

// NewZapLogger builds a zap.Logger whose core writes through w, for
// applications that prefer zap's API over this package's Logger seam. It
// is intended to be pointed at an *AsyncLogging sink (which implements
// io.Writer) so zap's calls get a non-blocking backing store. The engine's
// own diagnostics go through defaultLogger (os.Stderr) unless a loop is
// given another Logger via SetLogger; see _examples/govoltron-voltron, whose
// adapters construct a zap.Logger but never build the sink underneath it.
func NewZapLogger(w io.Writer) *zap.Logger {
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.AddSync(w),
		zapcore.InfoLevel,
	)
	return zap.New(core)
}
