// cmd_inspect.go - inspect und drivers Commands
// Hauptfunktionen: InspectHandler, DriversHandler
package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/easydeploy/infercore/format"
	"github.com/easydeploy/infercore/ml"
	"github.com/easydeploy/infercore/ml/backend/om"
)

// describer wird von Cores erfuellt, die Geraete-Details ihrer Blobs kennen
type describer interface {
	Describe() []om.BlobInfo
}

// InspectHandler - Zeigt die aufgeloesten Blobs eines Modells
func InspectHandler(cmd *cobra.Command, args []string) error {
	core, err := newCore(cmd, args[0])
	if err != nil {
		return err
	}
	defer core.Close()

	blobs, err := core.AllocBlobsBuffer()
	if err != nil {
		return err
	}

	devices := make(map[string]om.BlobInfo)
	if d, ok := core.(describer); ok {
		for _, info := range d.Describe() {
			devices[info.Name] = info
		}
	}

	var data [][]string
	for _, dir := range []struct {
		name   string
		shapes *ml.ShapeMap
	}{{"input", core.Inputs()}, {"output", core.Outputs()}} {
		for name := range dir.shapes.All() {
			t, err := blobs.Tensor(name)
			if err != nil {
				return err
			}

			native, deviceBytes := "-", "-"
			if info, ok := devices[name]; ok {
				native = info.Native.String()
				deviceBytes = strconv.Itoa(info.DeviceBytes)
			}

			data = append(data, []string{
				name,
				dir.name,
				t.Shape().String(),
				t.DType().String(),
				native,
				strconv.Itoa(t.ByteSize()),
				deviceBytes,
			})
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s (%s)\n\n", core.Name(), core.Type())

	table := newTable(out, []string{"NAME", "DIR", "SHAPE", "HOST", "NATIVE", "BYTES", "DEVICE BYTES"})
	table.AppendBulk(data)
	table.Render()

	return nil
}

// DriversHandler - Listet Backends, Treiber und Geraete
func DriversHandler(cmd *cobra.Command, _ []string) error {
	var data [][]string
	var devices int

	for _, backend := range ml.Backends() {
		if backend != om.CoreType {
			data = append(data, []string{string(backend), "-", "-", "-", "-"})
			continue
		}

		for _, name := range om.Drivers() {
			d, err := om.OpenDriver(name)
			if err != nil {
				data = append(data, []string{string(backend), name, "-", "unavailable", "-"})
				continue
			}

			infos, err := om.ListDevices(d)
			if err != nil {
				data = append(data, []string{string(backend), name, "-", err.Error(), "-"})
				continue
			}
			for _, info := range infos {
				data = append(data, []string{
					string(backend),
					name,
					strconv.Itoa(info.ID),
					info.Name,
					format.HumanBytes2(info.FreeMemory) + " / " + format.HumanBytes2(info.TotalMemory),
				})
			}
			devices += len(infos)
		}
	}

	out := cmd.OutOrStdout()
	table := newTable(out, []string{"BACKEND", "DRIVER", "DEVICE", "NAME", "MEMORY"})
	table.AppendBulk(data)
	table.Render()

	message.NewPrinter(language.English).Fprintf(out, "\n%d devices\n", devices)
	return nil
}
