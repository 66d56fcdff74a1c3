package extraction

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto-tracker/internal/domain"
)

func loadFixture(t *testing.T, name string) *goquery.Document {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	doc, err := New().Parse(raw)
	require.NoError(t, err)
	return doc
}

// rowFromHTML wraps row markup in a table so the parser keeps it.
func rowFromHTML(t *testing.T, rowHTML string) *goquery.Selection {
	t.Helper()
	doc, err := New().Parse([]byte("<table><tbody>" + rowHTML + "</tbody></table>"))
	require.NoError(t, err)
	row := doc.Find("tr").First()
	require.Equal(t, 1, row.Length())
	return row
}

func TestBuildRoleMap(t *testing.T) {
	roles := BuildRoleMap([]string{"#", "coin", "price", "24h %", "24h volume", "market cap"})

	want := RoleMap{
		RoleRank:      0,
		RoleCoin:      1,
		RolePrice:     2,
		RoleChange24:  3,
		RoleVolume24:  4,
		RoleMarketCap: 5,
	}
	assert.Equal(t, want, roles)
}

func TestBuildRoleMap_ChangeIgnoresOtherWindows(t *testing.T) {
	roles := BuildRoleMap([]string{"", "#", "coin", "price", "1h", "24h", "7d", "24h volume", "market cap"})

	idx, ok := roles.Index(RoleChange24)
	require.True(t, ok)
	assert.Equal(t, 5, idx)

	idx, ok = roles.Index(RoleVolume24)
	require.True(t, ok)
	assert.Equal(t, 7, idx)
}

func TestBuildRoleMap_Undetermined(t *testing.T) {
	roles := BuildRoleMap([]string{"coin", "price"})

	_, ok := roles.Index(RoleMarketCap)
	assert.False(t, ok)
	_, ok = roles.Index(RoleRank)
	assert.False(t, ok)
}

func TestParse_Empty(t *testing.T) {
	_, err := New().Parse([]byte("  \n "))
	assert.ErrorIs(t, err, ErrEmptyDocument)
}

func TestLocate_ListingTable(t *testing.T) {
	doc := loadFixture(t, "leaderboard.html")

	loc, err := New().Locate(doc)
	require.NoError(t, err)

	assert.False(t, loc.Degraded())
	assert.Equal(t, "table_body", loc.RowSource)
	assert.Equal(t, 12, loc.Rows.Length())
	assert.True(t, loc.Table.HasClass("listing"))

	idx, ok := loc.Roles.Index(RoleMarketCap)
	require.True(t, ok)
	assert.Equal(t, 8, idx)
}

func TestLocate_DegradedFallsBackToCoinRows(t *testing.T) {
	doc := loadFixture(t, "degraded.html")

	loc, err := New().Locate(doc)
	require.NoError(t, err)

	assert.True(t, loc.Degraded())
	assert.Empty(t, loc.Roles)
	assert.Equal(t, "coin_attribute", loc.RowSource)
	assert.Equal(t, 2, loc.Rows.Length())
}

func TestLocate_FallsBackToAnyRow(t *testing.T) {
	doc, err := New().Parse([]byte(`<table><tr><td>1</td><td>Bitcoin BTC</td><td>$1</td></tr></table>`))
	require.NoError(t, err)

	loc, err := New().Locate(doc)
	require.NoError(t, err)
	assert.Equal(t, "any_row", loc.RowSource)
	assert.Equal(t, 1, loc.Rows.Length())
}

func TestLocate_NoRows(t *testing.T) {
	doc, err := New().Parse([]byte(`<html><body><p>Maintenance</p></body></html>`))
	require.NoError(t, err)

	loc, err := New().Locate(doc)
	assert.ErrorIs(t, err, ErrNoRows)
	assert.True(t, loc.Degraded())
}

func TestExtractRow_MappedColumns(t *testing.T) {
	row := rowFromHTML(t, `<tr>
		<td>1</td>
		<td><img src="https://assets.example.com/btc.png" alt="Bitcoin"> BTC</td>
		<td>$67,000</td>
		<td>-2.1%</td>
		<td>$30B</td>
		<td>$1.3T</td>
	</tr>`)
	roles := BuildRoleMap([]string{"#", "coin", "price", "24h %", "24h volume", "market cap"})

	rec, err := New().ExtractRow(row, roles)
	require.NoError(t, err)

	assert.Equal(t, "BTC", rec.Symbol)
	assert.Equal(t, "Bitcoin", rec.Name)
	assert.InDelta(t, 67000.0, rec.Price, 1e-9)
	assert.InDelta(t, -2.1, rec.Change24h, 1e-9)
	assert.Equal(t, domain.DirectionDown, rec.ChangeDirection)
	assert.InDelta(t, 3e10, rec.Volume24h, 1)
	assert.InDelta(t, 1.3e12, rec.MarketCap, 1)
	assert.Equal(t, "https://assets.example.com/btc.png", rec.ImageURL)
	require.NotNil(t, rec.Rank)
	assert.Equal(t, 1, *rec.Rank)
}

func TestExtractRow_StarCellAndHeuristics(t *testing.T) {
	row := rowFromHTML(t, `<tr>
		<td class="star"><i></i></td>
		<td>3</td>
		<td><img src="usdt.png" alt="Tether"><span>USDT</span></td>
		<td>$1.00</td>
		<td>0.01%</td>
		<td>-0.02%</td>
		<td>0.1%</td>
		<td>$50B</td>
		<td>$110B</td>
	</tr>`)

	rec, err := New().ExtractRow(row, RoleMap{})
	require.NoError(t, err)

	require.NotNil(t, rec.Rank)
	assert.Equal(t, 3, *rec.Rank)
	assert.Equal(t, "USDT", rec.Symbol)
	assert.Equal(t, "Tether", rec.Name)
	assert.InDelta(t, 1.0, rec.Price, 1e-9)
	assert.InDelta(t, -0.02, rec.Change24h, 1e-9)
	assert.InDelta(t, 1.1e11, rec.MarketCap, 1)
	assert.InDelta(t, 5e10, rec.Volume24h, 1)
}

func TestExtractRow_ReconcilesMissingAmounts(t *testing.T) {
	row := rowFromHTML(t, `<tr>
		<td>4</td>
		<td><span>Cardano</span> <span>ADA</span></td>
		<td>$1.50</td>
		<td>+3.2%</td>
		<td>$2.1B</td>
		<td>$40B</td>
	</tr>`)
	roles := RoleMap{RoleRank: 0, RoleCoin: 1, RolePrice: 2, RoleChange24: 3}

	rec, err := New().ExtractRow(row, roles)
	require.NoError(t, err)

	assert.Equal(t, "ADA", rec.Symbol)
	assert.Equal(t, "Cardano", rec.Name)
	assert.InDelta(t, 1.5, rec.Price, 1e-9)
	assert.InDelta(t, 4e10, rec.MarketCap, 1)
	assert.InDelta(t, 2.1e9, rec.Volume24h, 1)
	assert.Equal(t, domain.DirectionUp, rec.ChangeDirection)
}

func TestExtractRow_TextScan(t *testing.T) {
	row := rowFromHTML(t, `<tr>
		<td><img src="sol.png" alt="Solana"><span>Solana</span><span>SOL</span></td>
		<td><span>$150.20</span><span>-1.5%</span><span>$70B</span><span>$3B</span></td>
	</tr>`)

	rec, err := New().ExtractRow(row, RoleMap{})
	require.NoError(t, err)

	assert.Equal(t, "SOL", rec.Symbol)
	assert.Equal(t, "Solana", rec.Name)
	assert.InDelta(t, 150.2, rec.Price, 1e-9)
	assert.InDelta(t, 7e10, rec.MarketCap, 1)
	assert.InDelta(t, 3e9, rec.Volume24h, 1)
	assert.InDelta(t, -1.5, rec.Change24h, 1e-9)
	assert.Nil(t, rec.Rank)
	assert.Equal(t, "sol.png", rec.ImageURL)
}

func TestExtractRow_TextScanSplitsWordsForRankAndName(t *testing.T) {
	row := rowFromHTML(t, `<tr><td>
		<div>1 Bitcoin BTC</div>
		<span>$67,000</span><span>$1.3T</span><span>$30B</span>
	</td></tr>`)

	rec, err := New().ExtractRow(row, RoleMap{})
	require.NoError(t, err)

	require.NotNil(t, rec.Rank)
	assert.Equal(t, 1, *rec.Rank)
	assert.Equal(t, "Bitcoin", rec.Name)
	assert.Equal(t, "BTC", rec.Symbol)
	assert.InDelta(t, 67000, rec.Price, 1e-9)
	assert.InDelta(t, 1.3e12, rec.MarketCap, 1)
	assert.InDelta(t, 3e10, rec.Volume24h, 1)
}

func TestExtractRow_TextScanTakesSecondPercent(t *testing.T) {
	row := rowFromHTML(t, `<tr><td>
		<span>Ethereum</span><span>ETH</span><span>$3,500</span>
		<span>+0.5%</span><span>-2.1%</span><span>+3.0%</span>
	</td></tr>`)

	rec, err := New().ExtractRow(row, RoleMap{})
	require.NoError(t, err)

	assert.Equal(t, "ETH", rec.Symbol)
	assert.InDelta(t, -2.1, rec.Change24h, 1e-9)
	assert.Equal(t, domain.DirectionDown, rec.ChangeDirection)
}

func TestExtractRow_SymbolDerivedFromName(t *testing.T) {
	row := rowFromHTML(t, `<tr>
		<td>5</td>
		<td><a href="/coins/tether">Tether</a></td>
		<td>$1.00</td>
		<td>0.0%</td>
		<td>$48B</td>
		<td>$110B</td>
	</tr>`)

	rec, err := New().ExtractRow(row, RoleMap{})
	require.NoError(t, err)

	assert.Equal(t, "TETHER", rec.Symbol)
	assert.Equal(t, "Tether", rec.Name)
	assert.Equal(t, domain.DirectionFlat, rec.ChangeDirection)
}

func TestExtractRow_IgnoresBuyLabel(t *testing.T) {
	row := rowFromHTML(t, `<tr>
		<td>2</td>
		<td><span>Ethereum</span><button>BUY</button><span>ETH</span></td>
		<td>$3,500</td>
		<td>1.0%</td>
		<td>$15B</td>
		<td>$420B</td>
	</tr>`)

	rec, err := New().ExtractRow(row, RoleMap{})
	require.NoError(t, err)
	assert.Equal(t, "ETH", rec.Symbol)
	assert.Equal(t, "Ethereum", rec.Name)
}

func TestExtractRow_RankOutOfRange(t *testing.T) {
	row := rowFromHTML(t, `<tr>
		<td>11</td>
		<td><img src="avax.png" alt="Avalanche"><span>AVAX</span></td>
		<td>$35.10</td>
		<td>2.2%</td>
		<td>$500M</td>
		<td>$13.8B</td>
	</tr>`)

	rec, err := New().ExtractRow(row, RoleMap{})
	assert.Nil(t, rec)
	assert.ErrorIs(t, err, ErrRankOutOfRange)

	rec, err = New(WithMaxRank(20)).ExtractRow(row, RoleMap{})
	require.NoError(t, err)
	assert.Equal(t, "AVAX", rec.Symbol)
}

func TestExtractRow_NoIdentity(t *testing.T) {
	row := rowFromHTML(t, `<tr><td>1</td><td>2</td><td>3</td><td>4</td><td>5</td></tr>`)

	rec, err := New().ExtractRow(row, RoleMap{})
	assert.Nil(t, rec)
	assert.ErrorIs(t, err, ErrNoIdentity)
}

type panickingStrategy struct{}

func (panickingStrategy) Name() string { return "panicking" }

func (panickingStrategy) Applies(*goquery.Selection) bool { return true }

func (panickingStrategy) Extract(*goquery.Selection, RoleMap) (*partial, bool) {
	panic("boom")
}

func TestExtractRow_RecoversPanic(t *testing.T) {
	row := rowFromHTML(t, `<tr><td>1</td><td>Bitcoin BTC</td></tr>`)

	rec, err := New(WithRowStrategies(panickingStrategy{})).ExtractRow(row, RoleMap{})
	assert.Nil(t, rec)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRowPanic))
	assert.Contains(t, err.Error(), "boom")
}

func TestExtract_LeaderboardFixture(t *testing.T) {
	doc := loadFixture(t, "leaderboard.html")
	ex := New()

	loc, err := ex.Locate(doc)
	require.NoError(t, err)

	var (
		records []*domain.AssetRecord
		skipped []error
	)
	loc.Rows.Each(func(_ int, row *goquery.Selection) {
		rec, err := ex.ExtractRow(row, loc.Roles)
		if err != nil {
			skipped = append(skipped, err)
			return
		}
		records = append(records, rec)
	})

	require.Len(t, records, 10)
	require.Len(t, skipped, 2)
	for _, err := range skipped {
		assert.ErrorIs(t, err, ErrRankOutOfRange)
	}

	symbols := make([]string, len(records))
	for i, r := range records {
		symbols[i] = r.Symbol
		require.NotNil(t, r.Rank)
		assert.Equal(t, i+1, *r.Rank)
		assert.True(t, r.Validate())
	}
	assert.Equal(t, "BTC ETH USDT BNB SOL USDC XRP DOGE TON ADA", strings.Join(symbols, " "))

	btc := records[0]
	assert.Equal(t, "Bitcoin", btc.Name)
	assert.InDelta(t, 67000.0, btc.Price, 1e-9)
	assert.InDelta(t, -2.1, btc.Change24h, 1e-9)
	assert.InDelta(t, 30123456789.0, btc.Volume24h, 1e-3)
	assert.InDelta(t, 1321456789012.0, btc.MarketCap, 1e-3)
	assert.Equal(t, "https://assets.example.com/coins/bitcoin.png", btc.ImageURL)

	doge := records[7]
	assert.InDelta(t, -4.2, doge.Change24h, 1e-9)
	assert.Equal(t, domain.DirectionDown, doge.ChangeDirection)
	assert.InDelta(t, 900.5e6, doge.Volume24h, 1)
}

func TestExtract_DegradedFixture(t *testing.T) {
	doc := loadFixture(t, "degraded.html")
	ex := New()

	loc, err := ex.Locate(doc)
	require.NoError(t, err)

	rec, err := ex.ExtractRow(loc.Rows.First(), loc.Roles)
	require.NoError(t, err)
	assert.Equal(t, "BTC", rec.Symbol)
	assert.InDelta(t, 1.3e12, rec.MarketCap, 1)
	assert.InDelta(t, 3e10, rec.Volume24h, 1)
	assert.InDelta(t, -2.1, rec.Change24h, 1e-9)
}
