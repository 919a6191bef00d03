package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/polydesk/internal/application/trading"
	"github.com/alejandrodnm/polydesk/internal/domain"
	"github.com/alejandrodnm/polydesk/internal/ports"
)

var _ ports.Notifier = (*Console)(nil)

// Console implementa ports.Notifier escribiendo a un terminal.
// Las aprobaciones quedan en memoria hasta que alguien las resuelva.
type Console struct {
	out io.Writer

	mu      sync.Mutex
	pending map[string]domain.ApprovalRequest
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole() *Console {
	return NewConsoleWriter(os.Stdout)
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w, pending: make(map[string]domain.ApprovalRequest)}
}

// Alert imprime una línea con la alerta.
func (c *Console) Alert(_ context.Context, a domain.Alert) error {
	at := a.At
	if at.IsZero() {
		at = time.Now()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "[%s] %s %s: %s\n", at.Format("15:04:05"), levelTag(a.Level), a.Title, a.Message)
	return nil
}

// RequestApproval registra el trade pendiente y devuelve un id "apr-...".
func (c *Console) RequestApproval(_ context.Context, req domain.ApprovalRequest) (string, error) {
	id := "apr-" + uuid.NewString()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[id] = req
	fmt.Fprintf(c.out, "[%s] APPROVAL %s: %s %s $%s @ %s (hyp %s)\n",
		req.RequestedAt.Format("15:04:05"), id,
		req.Direction, req.Market, req.Amount.StringFixed(2), req.Price.String(), req.HypothesisID)
	if req.Rationale != "" {
		fmt.Fprintf(c.out, "  rationale: %s\n", req.Rationale)
	}
	return id, nil
}

// Pending devuelve los ids de aprobaciones pendientes, ordenados.
func (c *Console) Pending() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.pending))
	for id := range c.pending {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Resolve quita una aprobación de la lista. Devuelve false si no existía.
func (c *Console) Resolve(id string) (domain.ApprovalRequest, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	req, ok := c.pending[id]
	delete(c.pending, id)
	return req, ok
}

// PrintPortfolio imprime el resumen del portfolio y la tabla de posiciones.
func (c *Console) PrintPortfolio(s trading.Summary) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.out, "\n=== PORTFOLIO (%d positions, %d trades) ===\n", len(s.Positions), s.TradeCount)
	fmt.Fprintf(c.out, "  Cash:       $%s (reserve $%s, deployable $%s)\n",
		s.Cash.StringFixed(2), s.ReserveFloor.StringFixed(2), s.Deployable.StringFixed(2))
	fmt.Fprintf(c.out, "  Invested:   $%s | Total $%s | Start $%s\n",
		s.Invested.StringFixed(2), s.TotalValue.StringFixed(2), s.StartingCapital.StringFixed(2))
	fmt.Fprintf(c.out, "  PnL:        realized $%s | unrealized $%s\n",
		s.RealizedPnL.StringFixed(2), s.UnrealizedPnL.StringFixed(2))

	if len(s.Positions) == 0 {
		fmt.Fprintln(c.out, "  no open positions")
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Market", "Dir", "Entry", "Now", "Shares", "Cost", "uPnL", "uPnL%", "Hypothesis")
	for i, pos := range s.Positions {
		now := "-"
		if pos.CurrentPrice != nil {
			now = pos.CurrentPrice.StringFixed(3)
		}
		table.Append(
			fmt.Sprintf("%d", i+1),
			domain.TruncateQuestion("", pos.Market, 24),
			string(pos.Direction),
			pos.EntryPrice.StringFixed(3),
			now,
			pos.Shares.StringFixed(2),
			"$"+pos.Cost.StringFixed(2),
			"$"+pos.UnrealizedPnL.StringFixed(2),
			pos.PnLPct.Shift(2).StringFixed(1)+"%",
			pos.HypothesisID,
		)
	}
	table.Render()
}

// PrintSignals imprime las señales de prioridad de un tick.
func (c *Console) PrintSignals(signals []domain.Signal) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(signals) == 0 {
		fmt.Fprintf(c.out, "[%s] no signals\n", time.Now().Format("15:04:05"))
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("Urg", "Type", "Action", "Market", "Context")
	for _, sig := range signals {
		market := domain.TruncateQuestion(sig.Context["question"], sig.Context["market"], 32)
		table.Append(fmt.Sprintf("%d", sig.Urgency), sig.Kind, sig.Action, market, contextLabel(sig.Context))
	}
	table.Render()
}

func levelTag(l domain.AlertLevel) string {
	if l == domain.AlertWarning {
		return "WARN"
	}
	return "INFO"
}

// contextLabel serializa el contexto de una señal como k=v ordenado,
// sin el mercado, que va en su propia columna.
func contextLabel(ctx map[string]string) string {
	keys := make([]string, 0, len(ctx))
	for k := range ctx {
		if k == "market" || k == "question" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+ctx[k])
	}
	return strings.Join(parts, " ")
}
