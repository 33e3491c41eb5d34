// journal-report prints win-rate statistics from the trade journal,
// broken down by signal type and by confidence bucket. Useful for
// checking whether the confidence score actually predicts outcomes.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type closedTrade struct {
	Symbol     string
	SignalType string
	Confidence float64
	Profit     float64
	ClosedAt   time.Time
}

type bucket struct {
	label   string
	trades  int
	wins    int
	pnl     float64
	winPnl  float64
	lossPnl float64
}

func (b *bucket) add(t closedTrade) {
	b.trades++
	b.pnl += t.Profit
	if t.Profit > 0 {
		b.wins++
		b.winPnl += t.Profit
	} else {
		b.lossPnl += t.Profit
	}
}

func (b *bucket) winRate() float64 {
	if b.trades == 0 {
		return 0
	}
	return float64(b.wins) / float64(b.trades) * 100
}

func main() {
	dbURL := flag.String("db", os.Getenv("DATABASE_URL"), "postgres connection string")
	account := flag.String("account", "", "limit to one account ID")
	days := flag.Int("days", 30, "lookback window in days")
	flag.Parse()

	if *dbURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL or -db is required")
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, *dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	trades, err := loadTrades(ctx, pool, *account, *days)
	if err != nil {
		fmt.Fprintf(os.Stderr, "query failed: %v\n", err)
		os.Exit(1)
	}
	if len(trades) == 0 {
		fmt.Println("No closed trades in the window.")
		return
	}

	fmt.Printf("Closed trades: %d (last %d days)\n\n", len(trades), *days)
	printGroup("By signal type", groupBy(trades, func(t closedTrade) string { return t.SignalType }))
	printGroup("By symbol", groupBy(trades, func(t closedTrade) string { return t.Symbol }))
	printGroup("By confidence", groupBy(trades, confidenceBucket))
}

func loadTrades(ctx context.Context, pool *pgxpool.Pool, account string, days int) ([]closedTrade, error) {
	query := `
		SELECT symbol, signal_type, confidence, profit, closed_at
		FROM trades
		WHERE closed_at IS NOT NULL
		  AND closed_at > now() - make_interval(days => $1)
		  AND ($2 = '' OR account_id = $2)
		ORDER BY closed_at
	`
	rows, err := pool.Query(ctx, query, days, account)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []closedTrade
	for rows.Next() {
		var t closedTrade
		if err := rows.Scan(&t.Symbol, &t.SignalType, &t.Confidence, &t.Profit, &t.ClosedAt); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func confidenceBucket(t closedTrade) string {
	switch {
	case t.Confidence >= 0.80:
		return "0.80+"
	case t.Confidence >= 0.70:
		return "0.70-0.79"
	case t.Confidence >= 0.60:
		return "0.60-0.69"
	default:
		return "under 0.60"
	}
}

func groupBy(trades []closedTrade, key func(closedTrade) string) []*bucket {
	byKey := make(map[string]*bucket)
	for _, t := range trades {
		k := key(t)
		b, ok := byKey[k]
		if !ok {
			b = &bucket{label: k}
			byKey[k] = b
		}
		b.add(t)
	}

	buckets := make([]*bucket, 0, len(byKey))
	for _, b := range byKey {
		buckets = append(buckets, b)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].pnl > buckets[j].pnl })
	return buckets
}

func printGroup(title string, buckets []*bucket) {
	fmt.Println(title)
	fmt.Printf("  %-18s %7s %8s %10s %10s\n", "", "trades", "win%", "pnl", "avg")
	for _, b := range buckets {
		avg := b.pnl / float64(b.trades)
		fmt.Printf("  %-18s %7d %7.1f%% %10.2f %10.2f\n", b.label, b.trades, b.winRate(), b.pnl, avg)
	}
	fmt.Println()
}
