package csvdir

import (
    "context"
    "encoding/csv"
    "errors"
    "fmt"
    "io"
    "os"
    "path/filepath"
    "strconv"
    "strings"
    "time"

    "dcsourcing/internal/integrations"
    "dcsourcing/internal/model"
)

// Adapter reads orders.csv, inventories.csv and lanes.csv from Dir. Each
// file starts with a header row; column names are matched case-insensitively
// and may appear in any order. A missing file yields no rows.
//
//   orders.csv:      order_number,destination,material,quantity[,due_date][,reward]
//   inventories.csv: location,material,position
//   lanes.csv:       origin,destination,expected_travel_time
type Adapter struct {
    Dir string
}

func (a Adapter) Name() string { return "csv-dir" }

func (a Adapter) Fetch(ctx context.Context) (integrations.Snapshot, error) {
    var snap integrations.Snapshot
    err := a.each("orders.csv", []string{"order_number", "destination", "material", "quantity"}, func(r row) error {
        q, err := r.atoi("quantity")
        if err != nil { return err }
        o := model.OrderIn{OrderNumber: r.get("order_number"), Destination: r.get("destination"), Material: r.get("material"), Quantity: q}
        if v := r.get("due_date"); v != "" {
            t, err := parseDate(v)
            if err != nil { return fmt.Errorf("due_date: %w", err) }
            o.DueDate = &t
        }
        if v := r.get("reward"); v != "" {
            f, err := strconv.ParseFloat(v, 64)
            if err != nil { return fmt.Errorf("reward: %w", err) }
            o.Reward = &f
        }
        snap.Orders = append(snap.Orders, o)
        return nil
    })
    if err != nil { return snap, err }
    err = a.each("inventories.csv", []string{"location", "material", "position"}, func(r row) error {
        p, err := r.atoi("position")
        if err != nil { return err }
        snap.Inventories = append(snap.Inventories, model.InventoryIn{Location: r.get("location"), Material: r.get("material"), Position: p})
        return nil
    })
    if err != nil { return snap, err }
    err = a.each("lanes.csv", []string{"origin", "destination", "expected_travel_time"}, func(r row) error {
        tt, err := strconv.ParseFloat(r.get("expected_travel_time"), 64)
        if err != nil { return fmt.Errorf("expected_travel_time: %w", err) }
        snap.Lanes = append(snap.Lanes, model.LaneIn{Origin: r.get("origin"), Destination: r.get("destination"), ExpectedTravelTime: tt})
        return nil
    })
    return snap, err
}

var _ integrations.Source = Adapter{}

type row struct {
    cols   map[string]int
    fields []string
}

func (r row) get(name string) string {
    i, ok := r.cols[name]
    if !ok || i >= len(r.fields) { return "" }
    return strings.TrimSpace(r.fields[i])
}

func (r row) atoi(name string) (int, error) {
    n, err := strconv.Atoi(r.get(name))
    if err != nil { return 0, fmt.Errorf("%s: %w", name, err) }
    return n, nil
}

func (a Adapter) each(file string, required []string, fn func(row) error) error {
    f, err := os.Open(filepath.Join(a.Dir, file))
    if errors.Is(err, os.ErrNotExist) { return nil }
    if err != nil { return err }
    defer f.Close()

    rd := csv.NewReader(f)
    rd.FieldsPerRecord = -1
    rd.TrimLeadingSpace = true
    header, err := rd.Read()
    if err == io.EOF { return nil }
    if err != nil { return fmt.Errorf("%s: %w", file, err) }
    cols := map[string]int{}
    for i, h := range header {
        cols[strings.ToLower(strings.TrimSpace(h))] = i
    }
    for _, c := range required {
        if _, ok := cols[c]; !ok { return fmt.Errorf("%s: missing column %s", file, c) }
    }
    line := 1
    for {
        rec, err := rd.Read()
        if err == io.EOF { return nil }
        line++
        if err != nil { return fmt.Errorf("%s: %w", file, err) }
        if err := fn(row{cols: cols, fields: rec}); err != nil {
            return fmt.Errorf("%s line %d: %w", file, line, err)
        }
    }
}

// parseDate accepts RFC 3339 timestamps or plain dates.
func parseDate(s string) (time.Time, error) {
    if t, err := time.Parse(time.RFC3339, s); err == nil { return t, nil }
    return time.Parse("2006-01-02", s)
}
