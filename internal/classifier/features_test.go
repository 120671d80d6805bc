package classifier

import "testing"

func TestHoneypotFeaturesDefaults(t *testing.T) {
	f := HoneypotFeatures("login_attempt", "user=root pass=wrong", nil)

	if f.FailedLogins != 0 {
		t.Errorf("failed_logins = %d, want 0", f.FailedLogins)
	}
	if f.RequestRate != 1 {
		t.Errorf("request_rate = %d, want 1", f.RequestRate)
	}
	if f.CommandsCount != 0 {
		t.Errorf("commands_count = %d, want 0", f.CommandsCount)
	}
	if f.SQLPayload != 0 {
		t.Errorf("sql_payload = %d, want 0", f.SQLPayload)
	}
	if f.HoneytokenAccess != 0 {
		t.Errorf("honeytoken_access = %d, want 0", f.HoneytokenAccess)
	}
	// session_time defaults to 0 and is clamped up to the model's floor
	if f.SessionTime != 10 {
		t.Errorf("session_time = %d, want 10", f.SessionTime)
	}
}

func TestHoneypotFeaturesFailedLoginCount(t *testing.T) {
	f := HoneypotFeatures("login_attempt", "Failed password. FAILED again. invalid user. Invalid key.", nil)
	if f.FailedLogins != 4 {
		t.Errorf("failed_logins = %d, want 4", f.FailedLogins)
	}
}

func TestHoneypotFeaturesFailedLoginCap(t *testing.T) {
	payload := ""
	for i := 0; i < 300; i++ {
		payload += "fail "
	}
	f := HoneypotFeatures("login_attempt", payload, nil)
	if f.FailedLogins != 150 {
		t.Errorf("failed_logins = %d, want 150 (capped)", f.FailedLogins)
	}
}

func TestHoneypotFeaturesCommandExec(t *testing.T) {
	f := HoneypotFeatures("command_exec", "ls -la", nil)
	if f.CommandsCount != 1 {
		t.Errorf("commands_count = %d, want 1", f.CommandsCount)
	}
}

func TestHoneypotFeaturesSQLSentinels(t *testing.T) {
	cases := map[string]int{
		"user=root pass=wrong":           0,
		"name=' OR 1=1":                  1,
		"comment -- drop":                1,
		"UNION ALL":                      1,
		"SELECT secret FROM credentials": 1,
		"Select * From users WHERE id=1": 1,
		"from the select committee":      0, // "from" precedes "select", no pair
		"selection criteria fromage":     1, // substring match is intentional
	}
	for payload, want := range cases {
		if got := HoneypotFeatures("x", payload, nil).SQLPayload; got != want {
			t.Errorf("sql_payload(%q) = %d, want %d", payload, got, want)
		}
	}
}

func TestHoneypotFeaturesExtraOverrides(t *testing.T) {
	extra := map[string]string{"request_rate": "420", "session_time": "120"}
	f := HoneypotFeatures("login_attempt", "", extra)
	if f.RequestRate != 420 {
		t.Errorf("request_rate = %d, want 420", f.RequestRate)
	}
	if f.SessionTime != 120 {
		t.Errorf("session_time = %d, want 120", f.SessionTime)
	}
}

func TestAgentFeaturesPinned(t *testing.T) {
	want := FeatureVector{
		FailedLogins:     90,
		RequestRate:      550,
		CommandsCount:    8,
		SQLPayload:       0,
		HoneytokenAccess: 1,
		SessionTime:      300,
	}
	if got := AgentFeatures(); got != want {
		t.Errorf("AgentFeatures() = %+v, want %+v", got, want)
	}
}

func TestClampRanges(t *testing.T) {
	f := FeatureVector{
		FailedLogins:     9999,
		RequestRate:      0,
		CommandsCount:    -3,
		SQLPayload:       7,
		HoneytokenAccess: -1,
		SessionTime:      100000,
	}.Clamp()

	want := FeatureVector{
		FailedLogins:     150,
		RequestRate:      1,
		CommandsCount:    0,
		SQLPayload:       1,
		HoneytokenAccess: 0,
		SessionTime:      600,
	}
	if f != want {
		t.Errorf("Clamp() = %+v, want %+v", f, want)
	}
}
