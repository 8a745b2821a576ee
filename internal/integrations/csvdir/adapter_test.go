package csvdir

import (
    "context"
    "os"
    "path/filepath"
    "testing"

    "github.com/stretchr/testify/require"

    "dcsourcing/internal/integrations"
    "dcsourcing/internal/store"
)

func write(t *testing.T, dir, name, body string) {
    t.Helper()
    require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestFetchParsesAllTables(t *testing.T) {
    dir := t.TempDir()
    write(t, dir, "orders.csv", "Order_Number,Destination,Material,Quantity,Due_Date,Reward\n1001,BER,M1,4,2024-03-01,\n1002, BER ,M1,6,,120.5\n")
    write(t, dir, "inventories.csv", "material,location,position\nM1,HAM,10\n")
    write(t, dir, "lanes.csv", "origin,destination,expected_travel_time\nHAM,BER,30.5\n")

    snap, err := Adapter{Dir: dir}.Fetch(context.Background())
    require.NoError(t, err)
    require.Len(t, snap.Orders, 2)
    require.Equal(t, "1001", snap.Orders[0].OrderNumber)
    require.NotNil(t, snap.Orders[0].DueDate)
    require.Nil(t, snap.Orders[0].Reward)
    require.Equal(t, "BER", snap.Orders[1].Destination)
    require.Equal(t, 120.5, *snap.Orders[1].Reward)
    require.Equal(t, "HAM", snap.Inventories[0].Location)
    require.Equal(t, 10, snap.Inventories[0].Position)
    require.Equal(t, 30.5, snap.Lanes[0].ExpectedTravelTime)
}

func TestFetchReportsBadRows(t *testing.T) {
    dir := t.TempDir()
    write(t, dir, "orders.csv", "order_number,destination,material,quantity\n1001,BER,M1,four\n")
    _, err := Adapter{Dir: dir}.Fetch(context.Background())
    require.ErrorContains(t, err, "orders.csv line 2")

    dir = t.TempDir()
    write(t, dir, "lanes.csv", "origin,destination\nHAM,BER\n")
    _, err = Adapter{Dir: dir}.Fetch(context.Background())
    require.ErrorContains(t, err, "missing column expected_travel_time")
}

func TestLoadIntoStore(t *testing.T) {
    dir := t.TempDir()
    write(t, dir, "orders.csv", "order_number,destination,material,quantity\n1001,BER,M1,4\n")
    write(t, dir, "inventories.csv", "location,material,position\nHAM,M1,10\n")
    write(t, dir, "lanes.csv", "origin,destination,expected_travel_time\nHAM,BER,30\n")

    m := store.NewMemory()
    res, err := integrations.Load(context.Background(), Adapter{Dir: dir}, m, "t1")
    require.NoError(t, err)
    require.Equal(t, integrations.LoadResult{OrdersCreated: 1, Inventories: 1, Lanes: 1}, res)

    cands, err := m.FetchCandidates(context.Background(), "t1")
    require.NoError(t, err)
    require.Len(t, cands, 1)
    require.Equal(t, "HAM", cands[0].Origin)
}
