package state

import (
	"errors"
	"math/big"
	"testing"
)

func TestRunAtomicCommitsOnSuccess(t *testing.T) {
	m := newTestManager(t)
	token := [20]byte{0x20}
	alice := [20]byte{0x01}
	bob := [20]byte{0x02}
	if err := m.Credit(token, alice, big.NewInt(1000)); err != nil {
		t.Fatalf("credit: %v", err)
	}

	err := m.RunAtomic(func() error {
		if err := m.Transfer(token, alice, bob, big.NewInt(400)); err != nil {
			return err
		}
		return m.Mint(token, bob, big.NewInt(50))
	})
	if err != nil {
		t.Fatalf("run atomic: %v", err)
	}

	if bal, _ := m.BalanceOf(token, alice); bal.Cmp(big.NewInt(600)) != 0 {
		t.Fatalf("unexpected sender balance: %s", bal)
	}
	if bal, _ := m.BalanceOf(token, bob); bal.Cmp(big.NewInt(450)) != 0 {
		t.Fatalf("unexpected recipient balance: %s", bal)
	}
	supply, err := m.TotalSupply(token)
	if err != nil {
		t.Fatalf("supply: %v", err)
	}
	if supply.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("unexpected total supply: %s", supply)
	}
}

func TestRunAtomicDiscardsAllWritesOnError(t *testing.T) {
	m := newTestManager(t)
	token := [20]byte{0x20}
	alice := [20]byte{0x01}
	bob := [20]byte{0x02}
	if err := m.Credit(token, alice, big.NewInt(1000)); err != nil {
		t.Fatalf("credit: %v", err)
	}

	fault := errors.New("downstream failure")
	err := m.RunAtomic(func() error {
		if err := m.Transfer(token, alice, bob, big.NewInt(400)); err != nil {
			return err
		}
		if err := m.SetPaused("sale", true); err != nil {
			return err
		}
		return fault
	})
	if !errors.Is(err, fault) {
		t.Fatalf("expected injected fault, got %v", err)
	}

	// Every write inside the failed block must be gone.
	if bal, _ := m.BalanceOf(token, alice); bal.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("sender balance mutated: %s", bal)
	}
	if bal, _ := m.BalanceOf(token, bob); bal.Sign() != 0 {
		t.Fatalf("recipient balance mutated: %s", bal)
	}
	if m.IsPaused("sale") {
		t.Fatal("pause flag persisted from failed block")
	}
}

func TestRunAtomicReadsSeeStagedWrites(t *testing.T) {
	m := newTestManager(t)
	token := [20]byte{0x20}
	alice := [20]byte{0x01}

	err := m.RunAtomic(func() error {
		if err := m.Credit(token, alice, big.NewInt(700)); err != nil {
			return err
		}
		bal, err := m.BalanceOf(token, alice)
		if err != nil {
			return err
		}
		if bal.Cmp(big.NewInt(700)) != 0 {
			t.Fatalf("staged write invisible to read: %s", bal)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("run atomic: %v", err)
	}
}

func TestRunAtomicSequentialBlocks(t *testing.T) {
	m := newTestManager(t)
	token := [20]byte{0x20}
	alice := [20]byte{0x01}

	for i := 0; i < 3; i++ {
		if err := m.RunAtomic(func() error {
			return m.Credit(token, alice, big.NewInt(100))
		}); err != nil {
			t.Fatalf("run atomic %d: %v", i, err)
		}
	}
	if bal, _ := m.BalanceOf(token, alice); bal.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("unexpected balance after sequential blocks: %s", bal)
	}
}
