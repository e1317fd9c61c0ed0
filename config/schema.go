package config

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cueyaml "cuelang.org/go/encoding/yaml"
)

const schemaPath = "infodisplay.cue"

// schemaSource closes every section so that misspelled keys are reported
// instead of being silently ignored.
const schemaSource = `
#Duration: =~ #"^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$"#
#Mode: "away" | "present" | "cleaning"

#Indicator: {
    warning?: string
    error?: string
}

#Config: {
    box?: {
        driver?: "eedomus" | "simulated"
        url?: string
        timeout?: #Duration
        mode_parameter?: string & != ""
        simulated?: {
            lights_on?: [...string]
            doors_opened?: [...string]
            house_mode?: #Mode
            outside_temperature?: number
            temperature_drift?: number & >= 0
            min_temperature?: number
            max_temperature?: number
            failure_rate?: number & >= 0 & <= 1
            apply_delay?: #Duration
            seed?: int
        }
    }
    refresh?: {
        normal_interval?: #Duration
        fast_interval?: #Duration
        after_action_cycles?: int & >= 0
    }
    display?: {
        enabled?: bool
        mock_pins?: bool
        pir_pin?: string
        backlight_pin?: string
        screen_timeout?: #Duration
        x_display?: string
        poll_interval?: #Duration
    }
    panel?: {
        enabled?: bool
        listen?: string
        frame_interval?: #Duration
        indicators?: {
            lights?: #Indicator
            doors?: #Indicator
        }
    }
    mqtt?: {
        enabled?: bool
        broker?: string
        client_id?: string
        topic_prefix?: string
        discovery_prefix?: string
        username?: string
        password?: string
    }
    logging?: {
        level?: "trace" | "debug" | "info" | "warn" | "error" | "fatal" | "panic" | ""
        format?: "json" | "text" | ""
        loki?: {
            enabled?: bool
            url?: string
            labels?: [string]: string
        }
    }
    telemetry?: {
        enabled?: bool
        provider?: string
    }
    hot_reload?: bool
}
`

func loadSchema() (*cue.Context, cue.Value, error) {
	ctx := cuecontext.New()
	root := ctx.CompileString(schemaSource, cue.Filename(schemaPath))
	if err := root.Err(); err != nil {
		return nil, cue.Value{}, fmt.Errorf("compile config schema: %w", err)
	}
	def := root.LookupPath(cue.ParsePath("#Config"))
	if err := def.Err(); err != nil {
		return nil, cue.Value{}, fmt.Errorf("lookup config schema: %w", err)
	}
	return ctx, def, nil
}

// validateSchema unifies the raw YAML document with the embedded schema.
func validateSchema(name string, data []byte) error {
	ctx, def, err := loadSchema()
	if err != nil {
		return err
	}
	file, err := cueyaml.Extract(name, data)
	if err != nil {
		return fmt.Errorf("parse config %s: %w", name, err)
	}
	doc := ctx.BuildFile(file)
	if err := doc.Err(); err != nil {
		return fmt.Errorf("build config %s: %w", name, err)
	}
	if err := def.Unify(doc).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("config %s does not match schema: %s", name, cueerrors.Details(err, nil))
	}
	return nil
}
