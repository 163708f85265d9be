package device

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

const dialTimeout = 10 * time.Second

// MikrotikConnector drives a RouterOS device over its binary API.
// Grounded on mikrotik_connector.py's MikrotikConnector: same connect/
// disconnect lifecycle, the same get-then-set-or-add idempotency for syslog
// and netflow provisioning, the same two-step block_ip (address-list entry
// plus a firewall rule referencing that list) and re-query-verified
// unblock_ip.
type MikrotikConnector struct {
	host     string
	port     int
	username string
	password string

	t *apiTransport
}

func NewMikrotikConnector(host string, port int, username, password string) *MikrotikConnector {
	if port == 0 {
		port = 8728
	}
	return &MikrotikConnector{host: host, port: port, username: username, password: password}
}

func (c *MikrotikConnector) Open(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", c.host, c.port)
	t, err := dialAPI(addr, dialTimeout)
	if err != nil {
		return NewConnectionError("connect", err)
	}

	if _, err := t.runSentence("/login", attrWord("name", c.username), attrWord("password", c.password)); err != nil {
		t.close()
		return NewConnectionError("connect", fmt.Errorf("login to %s failed: %w", c.host, err))
	}

	if _, err := t.runSentence("/system/identity/print"); err != nil {
		t.close()
		return NewConnectionError("connect", fmt.Errorf("connection check to %s failed: %w", c.host, err))
	}

	c.t = t
	return nil
}

func (c *MikrotikConnector) Close() error {
	if c.t == nil {
		return nil
	}
	err := c.t.close()
	c.t = nil
	return err
}

func (c *MikrotikConnector) exec(path string, attrs map[string]string) ([]reply, error) {
	if c.t == nil {
		return nil, NewConnectionError(path, fmt.Errorf("not connected"))
	}
	words := make([]string, 0, len(attrs)+1)
	words = append(words, path)
	for k, v := range attrs {
		words = append(words, attrWord(k, v))
	}
	out, err := c.t.runSentence(words...)
	if err != nil {
		return nil, NewCommandError(path, err)
	}
	return out, nil
}

func (c *MikrotikConnector) execQuery(path string, query map[string]string) ([]reply, error) {
	if c.t == nil {
		return nil, NewConnectionError(path, fmt.Errorf("not connected"))
	}
	words := []string{path + "/print"}
	for k, v := range query {
		words = append(words, "?"+k+"="+v)
	}
	out, err := c.t.runSentence(words...)
	if err != nil {
		return nil, NewCommandError(path+"/print", err)
	}
	return out, nil
}

func (c *MikrotikConnector) SystemIdentity(ctx context.Context) (*SystemIdentity, error) {
	rows, err := c.exec("/system/identity/print", nil)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &SystemIdentity{Name: rows[0].attrs["name"]}, nil
}

func (c *MikrotikConnector) SystemResourceInfo(ctx context.Context) (*SystemResourceInfo, error) {
	rows, err := c.exec("/system/resource/print", nil)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	a := rows[0].attrs
	cpuLoad, _ := strconv.Atoi(a["cpu-load"])
	freeMem, _ := strconv.ParseInt(a["free-memory"], 10, 64)
	return &SystemResourceInfo{
		Version:      a["version"],
		BoardName:    a["board-name"],
		CPULoad:      cpuLoad,
		FreeMemory:   freeMem,
		Uptime:       a["uptime"],
		Architecture: a["architecture-name"],
	}, nil
}

// ConfigureSyslog provisions a remote syslog action plus a logging rule that
// routes topics to it, updating in place if either already exists by name.
func (c *MikrotikConnector) ConfigureSyslog(ctx context.Context, targetHost string, targetPort int, actionNamePrefix, topics string) error {
	actionName := actionNamePrefix + "Syslog"

	existingActions, err := c.execQuery("/system/logging/action", map[string]string{"name": actionName})
	if err != nil {
		return err
	}
	actionParams := map[string]string{
		"name":        actionName,
		"target":      "remote",
		"remote":      targetHost,
		"remote-port": strconv.Itoa(targetPort),
	}
	if err := c.upsert("/system/logging/action", existingActions, actionParams); err != nil {
		return err
	}

	rulePrefix := actionNamePrefix + "_rule"
	existingRules, err := c.execQuery("/system/logging", map[string]string{"action": actionName, "prefix": rulePrefix})
	if err != nil {
		return err
	}
	ruleParams := map[string]string{"topics": topics, "action": actionName, "prefix": rulePrefix}
	return c.upsert("/system/logging", existingRules, ruleParams)
}

// ConfigureNetflow provisions the traffic-flow target and enables flow
// export on the given interfaces.
func (c *MikrotikConnector) ConfigureNetflow(ctx context.Context, targetHost string, targetPort int, interfaces string, version int) error {
	targetAddress := fmt.Sprintf("%s:%d", targetHost, targetPort)
	existingTargets, err := c.execQuery("/ip/traffic-flow/target", map[string]string{"address": targetAddress, "version": strconv.Itoa(version)})
	if err != nil {
		return err
	}
	targetParams := map[string]string{"address": targetAddress, "version": strconv.Itoa(version)}
	if err := c.upsert("/ip/traffic-flow/target", existingTargets, targetParams); err != nil {
		return err
	}

	_, err = c.exec("/ip/traffic-flow/set", map[string]string{
		"enabled":               "yes",
		"interfaces":            interfaces,
		"active-flow-timeout":   "1m",
		"inactive-flow-timeout": "15s",
	})
	return err
}

// upsert sets the first existing row's attributes by id, or adds a new row,
// mirroring mikrotik_connector.py's get-then-set-or-add provisioning idiom.
func (c *MikrotikConnector) upsert(path string, existing []reply, params map[string]string) error {
	if len(existing) > 0 {
		id := existing[0].attrs["id"]
		if id == "" {
			id = existing[0].attrs[".id"]
		}
		if id != "" {
			attrs := map[string]string{".id": id}
			for k, v := range params {
				attrs[k] = v
			}
			_, err := c.exec(path+"/set", attrs)
			return err
		}
	}
	_, err := c.exec(path+"/add", params)
	return err
}

func (c *MikrotikConnector) FirewallRules(ctx context.Context, chain string) ([]FirewallRule, error) {
	query := map[string]string{}
	if chain != "" {
		query["chain"] = chain
	}
	rows, err := c.execQuery("/ip/firewall/filter", query)
	if err != nil {
		return nil, err
	}
	rules := make([]FirewallRule, 0, len(rows))
	for _, r := range rows {
		rules = append(rules, FirewallRule{
			ID:       r.attrs[".id"],
			Chain:    r.attrs["chain"],
			Action:   r.attrs["action"],
			Disabled: r.attrs["disabled"] == "true",
			Fields:   r.attrs,
		})
	}
	return rules, nil
}

func (c *MikrotikConnector) findFirewallRule(chain, action, listField, listName string) (*FirewallRule, error) {
	rules, err := c.FirewallRules(context.Background(), chain)
	if err != nil {
		return nil, err
	}
	for _, r := range rules {
		if r.Action == action && r.Fields[listField] == listName {
			return &r, nil
		}
	}
	return nil, nil
}

const blockListDirectionField = "src-address-list"

// BlockIP adds ip to listName's address-list (tolerating an "already have
// such entry" duplicate as success) and ensures a forward/drop firewall
// rule referencing that list exists, placing a new rule at the top of the
// chain.
func (c *MikrotikConnector) BlockIP(ctx context.Context, listName, ip, comment string) error {
	if comment == "" {
		comment = "Blocked by SIEM: " + ip
	}
	if err := c.addToAddressList(listName, ip, comment); err != nil {
		return err
	}

	ruleComment := "SIEM_auto_block_for_" + listName
	existing, err := c.findFirewallRule("forward", "drop", blockListDirectionField, listName)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	added, err := c.exec("/ip/firewall/filter/add", map[string]string{
		"chain":                  "forward",
		"action":                 "drop",
		blockListDirectionField:  listName,
		"comment":                ruleComment,
	})
	if err != nil {
		return err
	}
	if len(added) == 0 || added[0].attrs[".id"] == "" {
		return NewCommandError("/ip/firewall/filter/add", fmt.Errorf("no rule id returned for list %s", listName))
	}
	_, err = c.exec("/ip/firewall/filter/move", map[string]string{"numbers": added[0].attrs[".id"], "destination": "0"})
	return err
}

func (c *MikrotikConnector) addToAddressList(listName, ip, comment string) error {
	_, err := c.exec("/ip/firewall/address-list/add", map[string]string{"list": listName, "address": ip, "comment": comment})
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "already have such entry") || strings.Contains(msg, "duplicate entry") {
		return nil
	}
	return err
}

// UnblockIP removes ip from listName's address-list and re-queries the list
// to confirm removal, returning an error if the entry is still present.
func (c *MikrotikConnector) UnblockIP(ctx context.Context, listName, ip string) error {
	entries, err := c.execQuery("/ip/firewall/address-list", map[string]string{"list": listName, "address": ip})
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	for _, e := range entries {
		if e.attrs[".id"] == "" {
			continue
		}
		if _, err := c.exec("/ip/firewall/address-list/remove", map[string]string{".id": e.attrs[".id"]}); err != nil {
			return err
		}
	}

	remaining, err := c.execQuery("/ip/firewall/address-list", map[string]string{"list": listName, "address": ip})
	if err != nil {
		return err
	}
	if len(remaining) > 0 {
		ids := make([]string, 0, len(remaining))
		for _, e := range remaining {
			ids = append(ids, e.attrs[".id"])
		}
		sort.Strings(ids)
		return NewCommandError("unblock_ip", fmt.Errorf("ip %s still present in list %s after removal, ids=%v", ip, listName, ids))
	}
	return nil
}
