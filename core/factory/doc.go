// Package factory instantiates pluggable modules (sources, oracles,
// classifiers, sinks) from configuration. A module is described by a type
// name and a map of raw settings; each factory decodes the settings into its
// own struct with Decode.
//
//	reg := factory.NewRegistry[source.Source]()
//	reg.Register("csv", func(conf map[string]any) (source.Source, error) {
//	    var c struct{ Path string `json:"path"` }
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    return NewCSV(c.Path)
//	})
//	src, err := reg.Create(factory.ModuleConfig{Type: "csv", Conf: map[string]any{"path": "data.csv"}})
package factory
