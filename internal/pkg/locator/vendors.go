package locator

import "strings"

// Device describes the handset, used to pick the vendor recording layout
type Device struct {
	Brand        string
	Manufacturer string
	Display      string
	Fingerprint  string
}

// Vendor keeps known recording directories of a vendor, relative to the storage root.
// Paths are ordered by probability
type Vendor struct {
	ID     string
	Detect func(d Device) bool
	Paths  []string
}

// Vendors is the ordered vendor table, the first matching vendor wins
var Vendors = []Vendor{
	{ID: "miui", Detect: isMIUI, Paths: []string{
		"MIUI/sound_recorder/call_rec",
		"MIUI/sound_recorder",
		"sound_recorder",
		"Recorder",
		"Android/data/com.miui.soundrecorder/files",
		"Android/data/com.android.soundrecorder/files",
		"Android/media/com.miui.voiceassistantsdk/SoundRecorder/call_rec",
		"MIUI/callrecord",
		"CallRecord",
		"Music/call_rec",
		"Sounds/call_rec",
	}},
	{ID: "oppo", Detect: isOPPO, Paths: []string{
		"Music/Recordings/Call Recordings",
		"Music/Recordings/Call Recording",
		"Music/Recordings",
		"OPPO/SoundRecorder/Call",
		"SoundRecorder/Call",
		"Recordings/Call",
		"CallRecord",
		"OPPO/CallRecord",
		"Android/data/com.oppo.soundrecorder/files",
		"Android/data/com.coloros.soundrecorder/files",
	}},
	{ID: "huawei", Detect: isHuawei, Paths: []string{
		"Sounds/CallRecord",
		"sounds/CallRecord",
		"CallRecord",
		"Recordings/CallRecord",
		"DCIM/CallRecord",
		"HWRecorder",
		"Android/data/com.huawei.systemmanager/files/CallRecord",
	}},
	{ID: "generic", Detect: func(Device) bool { return true }, Paths: []string{
		"Music/Recordings/Call Recordings",
		"Recordings/Call Recordings",
		"PhoneRecord",
		"Sounds/CallRecord",
		"HarmonyOS/Sounds/CallRecord",
		"Sounds",
		"CallRecord",
		"CallRecords",
		"MIUI/sound_recorder/call_rec",
		"Android/media/com.miui.voiceassistantsdk/SoundRecorder/call_rec",
		"Recordings",
		"Record/Call",
		"record",
		"Recorder",
	}},
}

// DetectVendor returns the first vendor matching the device
func DetectVendor(d Device, vendors []Vendor) *Vendor {
	for i := range vendors {
		if vendors[i].Detect != nil && vendors[i].Detect(d) {
			return &vendors[i]
		}
	}
	return nil
}

// candidatePaths returns detected vendor paths first, then the generic ones, no duplicates
func candidatePaths(d Device, vendors []Vendor) []string {
	res := []string{}
	seen := map[string]bool{}
	add := func(v *Vendor) {
		for _, p := range v.Paths {
			if !seen[p] {
				seen[p] = true
				res = append(res, p)
			}
		}
	}
	detected := DetectVendor(d, vendors)
	if detected != nil {
		add(detected)
	}
	for i := range vendors {
		if vendors[i].ID == "generic" && (detected == nil || detected.ID != "generic") {
			add(&vendors[i])
		}
	}
	return res
}

func isOPPO(d Device) bool {
	return containsAny(d.Brand, "oppo") || containsAny(d.Manufacturer, "oppo")
}

func isHuawei(d Device) bool {
	return containsAny(d.Brand, "huawei") || containsAny(d.Manufacturer, "huawei")
}

func isMIUI(d Device) bool {
	if containsAny(d.Brand, "xiaomi", "redmi", "poco") || containsAny(d.Manufacturer, "xiaomi", "redmi", "poco") {
		return true
	}
	return containsAny(d.Display, "miui") || containsAny(d.Fingerprint, "miui")
}

func containsAny(s string, subs ...string) bool {
	ls := strings.ToLower(s)
	for _, sub := range subs {
		if strings.Contains(ls, sub) {
			return true
		}
	}
	return false
}
