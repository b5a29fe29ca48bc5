package ledger

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Property-based tests for the ledger invariants: token ids are
// strictly increasing with no gaps, ownership is unique, and a full
// list/purchase round trip conserves payment.

func TestTokenIDsAreSequentialAndGapless(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("minted ids are 0..n-1 in order", prop.ForAll(
		func(amounts []int64) bool {
			l, err := New(&Config{AdminAddress: admin})
			if err != nil {
				return false
			}
			if _, err := l.RegisterDevice("sensor-1", "co2-meter", producer); err != nil {
				return false
			}

			var next uint64
			for _, amount := range amounts {
				credit, err := l.MintCredit(amount, "solar", "sensor-1", producer)
				if err != nil {
					return false
				}
				if credit.ID != next {
					return false
				}
				next++
			}
			return l.TotalSupply() == uint64(len(amounts))
		},
		gen.SliceOf(gen.Int64Range(1, 1_000_000)),
	))

	properties.Property("failed mints never consume an id", prop.ForAll(
		func(goodMints int, badAmount int64) bool {
			l, err := New(&Config{AdminAddress: admin})
			if err != nil {
				return false
			}
			if _, err := l.RegisterDevice("sensor-1", "co2-meter", producer); err != nil {
				return false
			}

			for i := 0; i < goodMints; i++ {
				if _, err := l.MintCredit(1, "solar", "sensor-1", producer); err != nil {
					return false
				}
			}
			// Invalid amount must not advance the sequence.
			if _, err := l.MintCredit(badAmount, "solar", "sensor-1", producer); err == nil {
				return false
			}
			credit, err := l.MintCredit(1, "solar", "sensor-1", producer)
			if err != nil {
				return false
			}
			return credit.ID == uint64(goodMints)
		},
		gen.IntRange(0, 20),
		gen.Int64Range(-1_000_000, 0),
	))

	properties.TestingRun(t)
}

func TestSaleRoundTripConservesPaymentAndOwnership(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("list then buy moves exactly the listed amount", prop.ForAll(
		func(price int64, sales int) bool {
			l, err := New(&Config{AdminAddress: admin})
			if err != nil {
				return false
			}
			if _, err := l.RegisterDevice("sensor-1", "co2-meter", producer); err != nil {
				return false
			}
			credit, err := l.MintCredit(1, "solar", "sensor-1", producer)
			if err != nil {
				return false
			}

			// Bounce the credit between two parties; each hop pays the
			// listed price to the previous owner.
			parties := []string{producer, buyer}
			var paid [2]int64
			for i := 0; i < sales; i++ {
				seller := parties[i%2]
				purchaser := parties[(i+1)%2]
				if _, err := l.ListForSale(credit.ID, price, seller); err != nil {
					return false
				}
				if _, err := l.Purchase(credit.ID, purchaser, price); err != nil {
					return false
				}
				paid[i%2] += price

				owner, err := l.OwnerOf(credit.ID)
				if err != nil || owner != purchaser {
					return false
				}
			}

			return l.BalanceOf(producer) == paid[0] && l.BalanceOf(buyer) == paid[1]
		},
		gen.Int64Range(1, 1_000_000),
		gen.IntRange(1, 10),
	))

	properties.Property("listing state is binary: delist after list restores mint state", prop.ForAll(
		func(price int64) bool {
			l, err := New(&Config{AdminAddress: admin})
			if err != nil {
				return false
			}
			if _, err := l.RegisterDevice("sensor-1", "co2-meter", producer); err != nil {
				return false
			}
			credit, err := l.MintCredit(1, "solar", "sensor-1", producer)
			if err != nil {
				return false
			}

			if _, err := l.ListForSale(credit.ID, price, producer); err != nil {
				return false
			}
			got, err := l.Delist(credit.ID, producer)
			if err != nil {
				return false
			}
			return !got.ForSale && got.Price == 0 && got.Owner == producer
		},
		gen.Int64Range(1, 1_000_000),
	))

	properties.TestingRun(t)
}

func TestDeviceRegistrationIsPermanent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("first registrant keeps the device forever", prop.ForAll(
		func(attempts int) bool {
			l, err := New(&Config{AdminAddress: admin})
			if err != nil {
				return false
			}
			if _, err := l.RegisterDevice("sensor-1", "co2-meter", producer); err != nil {
				return false
			}

			for i := 0; i < attempts; i++ {
				claimant := fmt.Sprintf("0x%040d", i+2)
				if _, err := l.RegisterDevice("sensor-1", "co2-meter", claimant); err == nil {
					return false
				}
			}

			device, err := l.GetDevice("sensor-1")
			return err == nil && device.Owner == producer
		},
		gen.IntRange(1, 20),
	))

	properties.TestingRun(t)
}
