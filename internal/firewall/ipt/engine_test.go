package ipt

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netban/internal/firewall"
)

// fakeRunner records ipset invocations and answers from a canned table.
type fakeRunner struct {
	calls   []string
	outputs map[string]string
	fails   map[string]error
}

func (f *fakeRunner) run(name string, args ...string) (string, error) {
	call := strings.Join(append([]string{name}, args...), " ")
	f.calls = append(f.calls, call)
	if err, ok := f.fails[call]; ok {
		return "", err
	}
	return f.outputs[call], nil
}

// fakeChains implements chainAPI in memory.
type fakeChains struct {
	chains map[string][][]string // chain -> rules
	calls  []string
}

func newFakeChains(globals ...string) *fakeChains {
	f := &fakeChains{chains: make(map[string][][]string)}
	for _, g := range globals {
		f.chains[g] = nil
	}
	return f
}

func (f *fakeChains) record(op string, chain string, rulespec []string) {
	f.calls = append(f.calls, fmt.Sprintf("%s %s %s", op, chain, strings.Join(rulespec, " ")))
}

func (f *fakeChains) ChainExists(_, chain string) (bool, error) {
	_, ok := f.chains[chain]
	return ok, nil
}

func (f *fakeChains) NewChain(_, chain string) error {
	f.record("new", chain, nil)
	if _, ok := f.chains[chain]; ok {
		return errors.New("chain already exists")
	}
	f.chains[chain] = nil
	return nil
}

func (f *fakeChains) AppendUnique(_, chain string, rulespec ...string) error {
	f.record("append", chain, rulespec)
	f.chains[chain] = append(f.chains[chain], rulespec)
	return nil
}

func (f *fakeChains) Insert(_, chain string, pos int, rulespec ...string) error {
	f.record("insert", chain, rulespec)
	rules := f.chains[chain]
	f.chains[chain] = append([][]string{rulespec}, rules...)
	return nil
}

func (f *fakeChains) DeleteIfExists(_, chain string, rulespec ...string) error {
	f.record("delete-if-exists", chain, rulespec)
	for i, r := range f.chains[chain] {
		if strings.Join(r, " ") == strings.Join(rulespec, " ") {
			f.chains[chain] = append(f.chains[chain][:i], f.chains[chain][i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *fakeChains) ClearChain(_, chain string) error {
	f.record("clear", chain, nil)
	f.chains[chain] = nil
	return nil
}

func (f *fakeChains) DeleteChain(_, chain string) error {
	f.record("delete", chain, nil)
	delete(f.chains, chain)
	return nil
}

func newTestEngine(t *testing.T, fr *fakeRunner, fc *fakeChains) *Engine {
	t.Helper()
	return &Engine{ipt: fc, run: fr.run, globals: []string{"OUTPUT", "FORWARD"}, stateDir: t.TempDir()}
}

func TestEnsureSetIssuesCreateExist(t *testing.T) {
	fr := &fakeRunner{}
	e := newTestEngine(t, fr, newFakeChains("OUTPUT", "FORWARD"))

	require.NoError(t, e.EnsureSet("speedtest_set"))
	assert.Equal(t, []string{"ipset create speedtest_set hash:net -exist"}, fr.calls)
}

func TestAddMembersSkipsExisting(t *testing.T) {
	fr := &fakeRunner{
		// test exits non-zero for members that are absent
		fails: map[string]error{
			"ipset test speedtest_set 5.6.7.8": errors.New("not in set"),
		},
	}
	e := newTestEngine(t, fr, newFakeChains("OUTPUT", "FORWARD"))

	added, err := e.AddMembers("speedtest_set", []string{"1.2.3.4", "5.6.7.8"})
	require.NoError(t, err)
	assert.Equal(t, 1, added)
	assert.Contains(t, fr.calls, "ipset add speedtest_set 5.6.7.8")
	assert.NotContains(t, fr.calls, "ipset add speedtest_set 1.2.3.4")
}

func TestAddMembersSurfacesEngineError(t *testing.T) {
	fr := &fakeRunner{
		fails: map[string]error{
			"ipset test speedtest_set 1.2.3.4": errors.New("not in set"),
			"ipset add speedtest_set 1.2.3.4":  errors.New("set is full"),
		},
	}
	e := newTestEngine(t, fr, newFakeChains("OUTPUT", "FORWARD"))

	_, err := e.AddMembers("speedtest_set", []string{"1.2.3.4"})
	require.Error(t, err)
	var opErr *firewall.OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "add member", opErr.Op)
	assert.Contains(t, err.Error(), "set is full")
}

func TestSetExistsDistinguishesMissingFromBroken(t *testing.T) {
	fr := &fakeRunner{
		fails: map[string]error{
			"ipset list gone_set -name":   errors.New("ipset v7.15: The set with the given name does not exist"),
			"ipset list broken_set -name": errors.New("ipset v7.15: Kernel error received: Operation not permitted"),
		},
	}
	e := newTestEngine(t, fr, newFakeChains("OUTPUT", "FORWARD"))

	ok, err := e.SetExists("gone_set")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = e.SetExists("broken_set")
	require.Error(t, err)
	var opErr *firewall.OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "check set", opErr.Op)

	// a broken ipset must also stop DestroySet, not look like a clean no-op
	err = e.DestroySet("broken_set")
	require.Error(t, err)
	assert.NotContains(t, fr.calls, "ipset destroy broken_set")
}

func TestParseMembers(t *testing.T) {
	out := `Name: speedtest_set
Type: hash:net
Header: family inet hashsize 1024 maxelem 65536
Size in memory: 568
References: 1
Members:
1.2.3.4
5.6.7.0/24 comment "fast.com"
`
	assert.Equal(t, []string{"1.2.3.4", "5.6.7.0/24"}, parseMembers(out))
}

func TestEnsureChainCreatesRuleAndJumps(t *testing.T) {
	fc := newFakeChains("OUTPUT", "FORWARD")
	e := newTestEngine(t, &fakeRunner{}, fc)

	require.NoError(t, e.EnsureChain("speedtest_chain", "speedtest_set", firewall.ActionDrop))

	require.Contains(t, fc.chains, "speedtest_chain")
	require.Len(t, fc.chains["speedtest_chain"], 1)
	assert.Equal(t,
		[]string{"-m", "set", "--match-set", "speedtest_set", "dst", "-j", "DROP"},
		fc.chains["speedtest_chain"][0])

	// one jump per global chain, inserted at the top
	require.Len(t, fc.chains["OUTPUT"], 1)
	assert.Equal(t, []string{"-j", "speedtest_chain"}, fc.chains["OUTPUT"][0])
	require.Len(t, fc.chains["FORWARD"], 1)
	assert.Equal(t, []string{"-j", "speedtest_chain"}, fc.chains["FORWARD"][0])
}

func TestEnsureChainIsNoOpWhenPresent(t *testing.T) {
	fc := newFakeChains("OUTPUT", "FORWARD")
	e := newTestEngine(t, &fakeRunner{}, fc)

	require.NoError(t, e.EnsureChain("speedtest_chain", "speedtest_set", firewall.ActionDrop))
	before := len(fc.calls)

	// second call must not touch anything: action changes need unban first
	require.NoError(t, e.EnsureChain("speedtest_chain", "speedtest_set", firewall.ActionReject))
	assert.Equal(t, before, len(fc.calls))
	assert.Len(t, fc.chains["OUTPUT"], 1)
}

func TestRemoveChainDetachesFlushesDeletes(t *testing.T) {
	fc := newFakeChains("OUTPUT", "FORWARD")
	e := newTestEngine(t, &fakeRunner{}, fc)
	require.NoError(t, e.EnsureChain("speedtest_chain", "speedtest_set", firewall.ActionDrop))

	require.NoError(t, e.RemoveChain("speedtest_chain"))

	assert.NotContains(t, fc.chains, "speedtest_chain")
	assert.Empty(t, fc.chains["OUTPUT"])
	assert.Empty(t, fc.chains["FORWARD"])
}

func TestRemoveChainMissingIsIdempotent(t *testing.T) {
	fc := newFakeChains("OUTPUT", "FORWARD")
	e := newTestEngine(t, &fakeRunner{}, fc)

	require.NoError(t, e.RemoveChain("speedtest_chain"))
	require.NoError(t, e.RemoveChain("speedtest_chain"))
}

func TestPersistWritesStateFiles(t *testing.T) {
	fr := &fakeRunner{outputs: map[string]string{
		"iptables-save": "*filter\n-A OUTPUT -j speedtest_chain\nCOMMIT\n",
	}}
	fc := newFakeChains("OUTPUT", "FORWARD")
	e := newTestEngine(t, fr, fc)

	require.NoError(t, e.Persist())

	assert.Contains(t, fr.calls, "ipset save -file "+filepath.Join(e.stateDir, "ipset.rules"))
	b, err := os.ReadFile(filepath.Join(e.stateDir, "rules.v4"))
	require.NoError(t, err)
	assert.Contains(t, string(b), "speedtest_chain")
}
